// Package events provides the playback state event bus. Cast device watchers
// publish player state transitions here; the queue manager subscribes per
// target to drive playlist advancement.
package events

import (
	"strings"
	"time"
)

// State represents a playback target's player state.
type State int

const (
	StateUnknown State = iota
	StateIdle
	StateBuffering
	StatePlaying
	StatePaused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ParseState maps a raw cast receiver player state onto the typed enum.
// Unrecognized vocabulary maps to StateUnknown rather than guessing.
func ParseState(raw string) State {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IDLE":
		return StateIdle
	case "BUFFERING":
		return StateBuffering
	case "PLAYING":
		return StatePlaying
	case "PAUSED":
		return StatePaused
	default:
		return StateUnknown
	}
}

// StateChange is a player state transition observed on one playback target.
type StateChange struct {
	Target    string    `json:"target"`
	Old       State     `json:"old"`
	New       State     `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackFinished reports whether the transition marks the end of a track:
// the player was actively playing and fell back to idle.
func (c StateChange) TrackFinished() bool {
	return c.Old == StatePlaying && c.New == StateIdle
}

// Handler receives state changes for a subscription.
type Handler func(change StateChange)

// Stats holds counters for observability endpoints.
type Stats struct {
	Published           int64            `json:"published"`
	Dropped             int64            `json:"dropped"`
	ByTarget            map[string]int64 `json:"by_target"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
}
