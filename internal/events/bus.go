package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const defaultBufferSize = 256

// Subscription is an active registration on the bus.
type Subscription struct {
	ID      string
	Target  string // empty subscribes to all targets
	Handler Handler `json:"-"`
	Created time.Time
}

// Bus dispatches playback state changes to subscribers. A single processor
// goroutine drains the publish channel, so changes for a given target are
// always delivered in the order they were published and never concurrently.
type Bus struct {
	logger hclog.Logger

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	changeCh      chan StateChange
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup

	stats Stats
}

// NewBus creates a bus with the given channel buffer size (0 uses the default).
func NewBus(bufferSize int, logger hclog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus{
		logger:        logger.Named("events"),
		subscriptions: make(map[string]*Subscription),
		changeCh:      make(chan StateChange, bufferSize),
		stopCh:        make(chan struct{}),
		stats:         Stats{ByTarget: make(map[string]int64)},
	}
}

// Start starts the processor goroutine.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("event bus is already running")
	}

	b.running = true
	b.stopCh = make(chan struct{})

	b.wg.Add(1)
	go b.process(ctx)

	b.logger.Debug("event bus started", "buffer_size", cap(b.changeCh))
	return nil
}

// Stop stops the bus, waiting for the processor to drain or ctx to expire.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopCh)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Debug("event bus stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus stop timed out")
		return ctx.Err()
	}
}

// Publish enqueues a state change without blocking. When the buffer is full
// the change is dropped with a warning; a stalled subscriber must not back up
// device watchers.
func (b *Bus) Publish(change StateChange) error {
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is not running")
	}
	b.mu.RUnlock()

	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}
	if change.Target == "" {
		return fmt.Errorf("state change target is required")
	}

	select {
	case b.changeCh <- change:
		return nil
	default:
		b.mu.Lock()
		b.stats.Dropped++
		b.mu.Unlock()
		b.logger.Warn("event channel full, dropping state change",
			"target", change.Target, "old", change.Old, "new", change.New)
		return fmt.Errorf("event channel full")
	}
}

// Subscribe registers a handler for one target's state changes. An empty
// target subscribes to every target.
func (b *Bus) Subscribe(target string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:      generateSubscriptionID(),
		Target:  target,
		Handler: handler,
		Created: time.Now(),
	}
	b.subscriptions[sub.ID] = sub

	b.logger.Debug("subscription created", "subscription_id", sub.ID, "target", target)
	return sub
}

// Unsubscribe removes a subscription. Unknown IDs are reported as errors so
// double-unsubscribes surface during development.
func (b *Bus) Unsubscribe(subscriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[subscriptionID]; !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(b.subscriptions, subscriptionID)

	b.logger.Debug("subscription removed", "subscription_id", subscriptionID)
	return nil
}

// GetStats returns a snapshot of bus counters.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := Stats{
		Published:           b.stats.Published,
		Dropped:             b.stats.Dropped,
		ByTarget:            make(map[string]int64, len(b.stats.ByTarget)),
		ActiveSubscriptions: len(b.subscriptions),
	}
	for target, count := range b.stats.ByTarget {
		snapshot.ByTarget[target] = count
	}
	return snapshot
}

// Health reports an error when the bus is down or severely backed up.
func (b *Bus) Health() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.running {
		return fmt.Errorf("event bus is not running")
	}

	usage := float64(len(b.changeCh)) / float64(cap(b.changeCh))
	if usage > 0.9 {
		return fmt.Errorf("event channel is %d%% full", int(usage*100))
	}
	return nil
}

func (b *Bus) process(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			b.drain()
			return
		case <-ctx.Done():
			return
		case change := <-b.changeCh:
			b.dispatch(change)
		}
	}
}

// drain delivers changes that were accepted before Stop. Publish rejects new
// changes once the bus is marked stopped, so this terminates.
func (b *Bus) drain() {
	for {
		select {
		case change := <-b.changeCh:
			b.dispatch(change)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(change StateChange) {
	b.mu.Lock()
	b.stats.Published++
	b.stats.ByTarget[change.Target]++

	matching := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if sub.Target == "" || sub.Target == change.Target {
			matching = append(matching, sub)
		}
	}
	b.mu.Unlock()

	b.logger.Debug("dispatching state change",
		"target", change.Target, "old", change.Old.String(), "new", change.New.String(),
		"subscribers", len(matching))

	for _, sub := range matching {
		b.notify(sub, change)
	}
}

func (b *Bus) notify(sub *Subscription, change StateChange) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in state change handler",
				"subscription_id", sub.ID, "target", change.Target, "panic", r)
		}
	}()

	sub.Handler(change)
}

func generateSubscriptionID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "sub-" + hex.EncodeToString(bytes)
}
