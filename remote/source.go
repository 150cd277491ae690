// Package remote fetches the playlist from the network and turns it into
// cache items.
package remote

import (
	"context"

	"github.com/dailyyoga/vidcache/playlist"
)

// Source fetches the complete remote playlist
type Source interface {
	// FetchPlaylist returns the playlist in remote order.
	// Failures are reported as playlist.Failure with KindNetworkError or KindTimeout.
	FetchPlaylist(ctx context.Context) ([]RemoteItem, error)
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(ctx context.Context) ([]RemoteItem, error)

// FetchPlaylist calls f(ctx)
func (f SourceFunc) FetchPlaylist(ctx context.Context) ([]RemoteItem, error) {
	return f(ctx)
}

// RemoteItem is one entry of the remote playlist document
type RemoteItem struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	URL            string   `json:"url"`
	Thumbnail      string   `json:"thumbnail"`
	MediaURL       string   `json:"media_url"`
	Updated        string   `json:"updated"`
	ClosedCaptions []string `json:"closedCaptions"`
}

// Document is the top-level remote payload
type Document struct {
	Videos []RemoteItem `json:"videos"`
}

// ToItems projects remote entries onto cache items.
//
// The identifier is the remote id, or the url when the id is empty; entries
// with neither are dropped. Duplicate identifiers keep their first occurrence.
// Remote order is preserved. ToItems has no side effects.
func ToItems(remote []RemoteItem) []playlist.Item {
	items := make([]playlist.Item, 0, len(remote))
	seen := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		id := r.ID
		if id == "" {
			id = r.URL
		}
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, playlist.Item{
			ID:           id,
			Title:        r.Title,
			Description:  r.Description,
			URL:          r.URL,
			ThumbnailURL: r.Thumbnail,
			MediaURL:     r.MediaURL,
		})
	}
	return items
}
