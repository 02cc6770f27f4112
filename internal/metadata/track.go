// Package metadata retrieves track and playlist metadata from the source
// platform's catalog.
package metadata

import (
	"strings"
	"time"
)

// Track is one playable item. Immutable once supplied by the provider.
type Track struct {
	VideoID   string        `json:"video_id"`
	Title     string        `json:"title"`
	Artists   []string      `json:"artists,omitempty"`
	Thumbnail string        `json:"thumbnail,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Label renders "Artist - Title" for playlist entries and logs.
func (t Track) Label() string {
	if len(t.Artists) == 0 || t.Artists[0] == "" {
		return t.Title
	}
	return strings.TrimSpace(t.Artists[0] + " - " + t.Title)
}
