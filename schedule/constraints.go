package schedule

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Constraint is one environmental condition a run may require
type Constraint string

const (
	ConstraintUnmeteredNetwork Constraint = "unmetered_network"
	ConstraintBatteryNotLow    Constraint = "battery_not_low"
	ConstraintCharging         Constraint = "charging"
	ConstraintDeviceIdle       Constraint = "device_idle"
)

// Constraints is the set of conditions required before a run starts
type Constraints struct {
	UnmeteredNetwork bool `mapstructure:"unmetered_network" json:"unmetered_network"`
	BatteryNotLow    bool `mapstructure:"battery_not_low" json:"battery_not_low"`
	Charging         bool `mapstructure:"charging" json:"charging"`
	DeviceIdle       bool `mapstructure:"device_idle" json:"device_idle"`
}

// List returns the required constraints in a fixed order
func (c Constraints) List() []Constraint {
	var out []Constraint
	if c.UnmeteredNetwork {
		out = append(out, ConstraintUnmeteredNetwork)
	}
	if c.BatteryNotLow {
		out = append(out, ConstraintBatteryNotLow)
	}
	if c.Charging {
		out = append(out, ConstraintCharging)
	}
	if c.DeviceIdle {
		out = append(out, ConstraintDeviceIdle)
	}
	return out
}

func (c Constraints) String() string {
	list := c.List()
	if len(list) == 0 {
		return "none"
	}
	parts := make([]string, len(list))
	for i, k := range list {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

// ConstraintChecker reports whether the host currently satisfies a set
type ConstraintChecker interface {
	Satisfied(ctx context.Context, c Constraints) (bool, error)
}

// CheckerFunc adapts a function to ConstraintChecker
type CheckerFunc func(ctx context.Context, c Constraints) (bool, error)

// Satisfied calls f(ctx, c)
func (f CheckerFunc) Satisfied(ctx context.Context, c Constraints) (bool, error) {
	return f(ctx, c)
}

// AlwaysSatisfied never holds a run back
var AlwaysSatisfied ConstraintChecker = CheckerFunc(func(context.Context, Constraints) (bool, error) {
	return true, nil
})

// Probe evaluates one constraint on the host
type Probe func(ctx context.Context) (bool, error)

type probeChecker struct {
	probes map[Constraint]Probe
}

// NewProbeChecker checks each required constraint with its probe.
// Constraints without a probe count as satisfied.
func NewProbeChecker(probes map[Constraint]Probe) ConstraintChecker {
	return &probeChecker{probes: probes}
}

func (p *probeChecker) Satisfied(ctx context.Context, c Constraints) (bool, error) {
	for _, k := range c.List() {
		probe, ok := p.probes[k]
		if !ok {
			continue
		}
		met, err := probe(ctx)
		if err != nil {
			return false, err
		}
		if !met {
			return false, nil
		}
	}
	return true, nil
}

// lowBatteryPercent matches the threshold mobile platforms use for "battery low"
const lowBatteryPercent = 15

// SysfsProbes returns Charging and BatteryNotLow probes that read the
// power supply class under root, usually /sys/class/power_supply.
// Hosts without a battery satisfy both.
func SysfsProbes(root string) map[Constraint]Probe {
	return map[Constraint]Probe{
		ConstraintCharging: func(ctx context.Context) (bool, error) {
			batteries, err := findBatteries(root)
			if err != nil || len(batteries) == 0 {
				return true, err
			}
			for _, b := range batteries {
				status := readAttr(b, "status")
				if status == "Charging" || status == "Full" {
					return true, nil
				}
			}
			return false, nil
		},
		ConstraintBatteryNotLow: func(ctx context.Context) (bool, error) {
			batteries, err := findBatteries(root)
			if err != nil || len(batteries) == 0 {
				return true, err
			}
			for _, b := range batteries {
				capacity, err := strconv.Atoi(readAttr(b, "capacity"))
				if err != nil {
					continue
				}
				if capacity <= lowBatteryPercent && readAttr(b, "status") != "Charging" {
					return false, nil
				}
			}
			return true, nil
		},
	}
}

func findBatteries(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		if readAttr(dir, "type") == "Battery" {
			out = append(out, dir)
		}
	}
	return out, nil
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
