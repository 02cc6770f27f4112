// Package streammodule resolves media identifiers to playable upstream URLs
// and proxies the audio bytes over HTTP.
package streammodule

import (
	"errors"
	"fmt"
	"time"

	"github.com/mantonx/tunecast/internal/metadata"
)

// StreamInfo is a resolved stream: the upstream URL plus the track metadata
// captured at resolution time.
type StreamInfo struct {
	VideoID    string         `json:"video_id"`
	StreamURL  string         `json:"stream_url"`
	Track      metadata.Track `json:"track"`
	ResolvedAt time.Time      `json:"resolved_at"`
}

// ErrExtraction marks a resolution where every extraction strategy failed.
// Retrying immediately will not help; a later retry may.
var ErrExtraction = errors.New("stream extraction failed")

// ErrUpstreamFetch marks a network failure fetching bytes after resolution
// succeeded.
var ErrUpstreamFetch = errors.New("upstream fetch failed")

// ExtractionError carries the per-strategy failures behind ErrExtraction.
type ExtractionError struct {
	VideoID  string
	Attempts map[string]error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("all %d extraction strategies failed for %s", len(e.Attempts), e.VideoID)
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtraction
}
