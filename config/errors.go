package config

import "fmt"

// ErrLoad returns an error for a config source that could not be set up
func ErrLoad(err error) error {
	return fmt.Errorf("config: load failed: %w", err)
}

// ErrRead returns an error for a config file that exists but cannot be read
func ErrRead(err error) error {
	return fmt.Errorf("config: read file: %w", err)
}

// ErrParse returns an error for settings that do not fit the config structure
func ErrParse(err error) error {
	return fmt.Errorf("config: parse: %w", err)
}

// ErrInvalidSection wraps the validation error of one section
func ErrInvalidSection(section string, err error) error {
	return fmt.Errorf("config: invalid %s section: %w", section, err)
}
