package notify

import (
	"encoding/json"
	"time"

	"github.com/dailyyoga/vidcache/playlist"
)

// EventTypeSnapshot marks an event carrying a committed snapshot
const EventTypeSnapshot = "snapshot"

// Event is the JSON payload published for each committed snapshot
type Event struct {
	Type        string          `json:"type"`
	Version     uint64          `json:"version"`
	CommittedAt time.Time       `json:"committed_at"`
	Count       int             `json:"count"`
	IDs         []string        `json:"ids"`
	Items       []playlist.Item `json:"items,omitempty"`
}

// NewEvent builds the event for snap
func NewEvent(snap playlist.Snapshot, includeItems bool) Event {
	ev := Event{
		Type:        EventTypeSnapshot,
		Version:     snap.Version,
		CommittedAt: snap.CommittedAt,
		Count:       snap.Len(),
		IDs:         snap.IDs(),
	}
	if includeItems {
		ev.Items = snap.Items
	}
	return ev
}

// Encode returns the JSON form of the event
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, ErrEncode(err)
	}
	return data, nil
}
