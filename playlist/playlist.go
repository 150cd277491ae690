// Package playlist holds the domain types shared by the cache, the refresh
// pipeline and the scheduler.
package playlist

import (
	"slices"
	"time"
)

// Item is one cached video. Items are values: they are only ever written as
// part of a full replacement batch, never updated in place.
type Item struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	MediaURL     string `json:"media_url"`
}

// Snapshot is the full, ordered content of the cache at one commit.
//
// IMPORTANT: Items is shared between every reader of the same snapshot.
// Callers MUST treat it as read-only; use Clone before modifying.
type Snapshot struct {
	Items []Item `json:"items"`
	// Version is incremented by one on every committed replacement.
	// 0 means the snapshot was loaded from storage at open time.
	Version     uint64    `json:"version"`
	CommittedAt time.Time `json:"committed_at"`
}

// Len returns the number of items in the snapshot
func (s Snapshot) Len() int {
	return len(s.Items)
}

// IDs returns the item identifiers in snapshot order
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.ID
	}
	return ids
}

// Clone returns a copy whose Items slice may be modified freely
func (s Snapshot) Clone() Snapshot {
	s.Items = slices.Clone(s.Items)
	return s
}

// SameItems reports whether both snapshots hold the same items in the same order
func (s Snapshot) SameItems(other Snapshot) bool {
	return slices.Equal(s.Items, other.Items)
}
