// Package queuemodule drives sequential playback of track lists on cast
// targets, advancing when the device reports a track has finished.
package queuemodule

import (
	"errors"

	"github.com/mantonx/tunecast/internal/metadata"
)

// Status is the lifecycle state of a playback queue. Finished and aborted
// are terminal.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusFinished
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ErrQueueAborted marks a queue torn down because its play callback failed.
var ErrQueueAborted = errors.New("queue aborted")

// playbackQueue is the per-target state. All access goes through the
// manager's lock.
type playbackQueue struct {
	target     string
	tracks     []metadata.Track
	index      int
	status     Status
	generation string
	subID      string
}

func (q *playbackQueue) current() (metadata.Track, bool) {
	if q.index < 0 || q.index >= len(q.tracks) {
		return metadata.Track{}, false
	}
	return q.tracks[q.index], true
}

func (q *playbackQueue) next() (metadata.Track, bool) {
	if q.index+1 >= len(q.tracks) {
		return metadata.Track{}, false
	}
	return q.tracks[q.index+1], true
}

// Snapshot is a read-only view of a queue for status endpoints.
type Snapshot struct {
	Target  string          `json:"target"`
	Status  string          `json:"status"`
	Index   int             `json:"index"`
	Total   int             `json:"total"`
	Current *metadata.Track `json:"current,omitempty"`
}
