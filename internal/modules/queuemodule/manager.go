package queuemodule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tunecast/internal/events"
	"github.com/mantonx/tunecast/internal/metadata"
)

// ErrNoActiveQueue is returned when an operation targets a device with no
// live queue.
var ErrNoActiveQueue = errors.New("no active queue for target")

const advanceTimeout = 30 * time.Second

// PlayTrackFunc starts playback of one track on a target device.
type PlayTrackFunc func(ctx context.Context, target string, track metadata.Track) error

// StopFunc stops whatever is playing on a target device.
type StopFunc func(target string) error

// PrefetchFunc warms the stream cache for an upcoming track.
type PrefetchFunc func(ctx context.Context, videoID string)

// Recorder persists playback start events.
type Recorder interface {
	Record(target, videoID, title, artist string) error
}

// Manager owns one playback queue per target. Starting a queue supersedes
// any prior queue on the same target; a superseded queue's events are
// dropped so a delayed notification can never advance its replacement.
type Manager struct {
	bus      *events.Bus
	play     PlayTrackFunc
	stop     StopFunc
	prefetch PrefetchFunc
	history  Recorder
	logger   hclog.Logger

	mu     sync.Mutex
	queues map[string]*playbackQueue
}

// NewManager wires the queue manager to its collaborators. prefetch and
// history may be nil.
func NewManager(bus *events.Bus, play PlayTrackFunc, stop StopFunc, prefetch PrefetchFunc, history Recorder, logger hclog.Logger) *Manager {
	return &Manager{
		bus:      bus,
		play:     play,
		stop:     stop,
		prefetch: prefetch,
		history:  history,
		logger:   logger.Named("queue"),
		queues:   make(map[string]*playbackQueue),
	}
}

// Start begins playing tracks on the target, replacing any existing queue.
func (m *Manager) Start(ctx context.Context, target string, tracks []metadata.Track) error {
	if len(tracks) == 0 {
		return errors.New("queue needs at least one track")
	}

	m.mu.Lock()
	if old, ok := m.queues[target]; ok {
		m.retire(old)
	}

	q := &playbackQueue{
		target:     target,
		tracks:     tracks,
		status:     StatusIdle,
		generation: uuid.New().String(),
	}
	m.queues[target] = q

	gen := q.generation
	sub := m.bus.Subscribe(target, func(change events.StateChange) {
		m.handleStateChange(gen, change)
	})
	q.subID = sub.ID
	m.mu.Unlock()

	m.logger.Info("queue started", "target", target, "tracks", len(tracks))
	return m.playCurrent(ctx, q, gen)
}

// Stop aborts the target's queue and stops device playback. Stopping a
// target without a queue is a no-op.
func (m *Manager) Stop(target string) error {
	m.mu.Lock()
	q, ok := m.queues[target]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	m.retire(q)
	q.status = StatusAborted
	delete(m.queues, target)
	m.mu.Unlock()

	m.logger.Info("queue stopped", "target", target)
	if err := m.stop(target); err != nil {
		m.logger.Warn("device stop failed", "target", target, "error", err)
	}
	return nil
}

// Get returns a snapshot of the target's queue.
func (m *Manager) Get(target string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[target]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoActiveQueue, target)
	}

	snap := Snapshot{
		Target: q.target,
		Status: q.status.String(),
		Index:  q.index,
		Total:  len(q.tracks),
	}
	if track, ok := q.current(); ok {
		snap.Current = &track
	}
	return snap, nil
}

// Shutdown aborts every queue.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	targets := make([]string, 0, len(m.queues))
	for target := range m.queues {
		targets = append(targets, target)
	}
	m.mu.Unlock()

	for _, target := range targets {
		if err := m.Stop(target); err != nil {
			m.logger.Warn("queue shutdown failed", "target", target, "error", err)
		}
	}
}

// handleStateChange advances the queue when its current track finishes.
// Events for superseded generations or non-playing queues are dropped.
func (m *Manager) handleStateChange(gen string, change events.StateChange) {
	m.mu.Lock()
	q, ok := m.queues[change.Target]
	if !ok || q.generation != gen || q.status != StatusPlaying {
		m.mu.Unlock()
		return
	}
	if !change.TrackFinished() {
		m.mu.Unlock()
		return
	}

	q.index++
	if _, ok := q.current(); !ok {
		q.status = StatusFinished
		m.retire(q)
		m.mu.Unlock()
		m.logger.Info("queue finished", "target", change.Target, "tracks", len(q.tracks))
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), advanceTimeout)
	defer cancel()
	if err := m.playCurrent(ctx, q, gen); err != nil {
		m.logger.Error("queue advance failed", "target", change.Target, "error", err)
	}
}

// playCurrent invokes the play callback for the queue's current track and
// moves the queue to playing. A callback failure aborts the queue.
func (m *Manager) playCurrent(ctx context.Context, q *playbackQueue, gen string) error {
	m.mu.Lock()
	if q.generation != gen || q.status == StatusAborted {
		m.mu.Unlock()
		return nil
	}
	track, ok := q.current()
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if err := m.play(ctx, q.target, track); err != nil {
		m.mu.Lock()
		q.status = StatusAborted
		m.retire(q)
		if m.queues[q.target] == q {
			delete(m.queues, q.target)
		}
		m.mu.Unlock()
		return fmt.Errorf("%w: playing %s on %s: %v", ErrQueueAborted, track.VideoID, q.target, err)
	}

	// The queue may have been stopped or superseded while the callback was
	// in flight; a dead queue gets none of the post-play side effects.
	m.mu.Lock()
	if q.status == StatusAborted || q.generation != gen || m.queues[q.target] != q {
		m.mu.Unlock()
		return nil
	}
	q.status = StatusPlaying
	index := q.index
	next, hasNext := q.next()
	m.mu.Unlock()

	m.logger.Info("track playing", "target", q.target, "index", index, "title", track.Label())

	if m.history != nil {
		artist := ""
		if len(track.Artists) > 0 {
			artist = track.Artists[0]
		}
		if err := m.history.Record(q.target, track.VideoID, track.Title, artist); err != nil {
			m.logger.Warn("history record failed", "target", q.target, "error", err)
		}
	}
	if hasNext && m.prefetch != nil {
		m.prefetch(context.Background(), next.VideoID)
	}
	return nil
}

// retire unsubscribes a queue from the event bus. Callers hold the lock.
func (m *Manager) retire(q *playbackQueue) {
	if q.subID == "" {
		return
	}
	if err := m.bus.Unsubscribe(q.subID); err != nil {
		m.logger.Debug("unsubscribe failed", "target", q.target, "error", err)
	}
	q.subID = ""
}
