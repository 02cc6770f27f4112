package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(16, hclog.NewNullLogger())
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Stop(ctx)
	})
	return bus
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBusDeliversToTargetSubscriber(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var received []StateChange
	bus.Subscribe("living-room", func(c StateChange) {
		mu.Lock()
		received = append(received, c)
		mu.Unlock()
	})

	require.NoError(t, bus.Publish(StateChange{Target: "living-room", Old: StatePlaying, New: StateIdle}))
	require.NoError(t, bus.Publish(StateChange{Target: "kitchen", Old: StatePlaying, New: StateIdle}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "living-room", received[0].Target)
	assert.True(t, received[0].TrackFinished())
}

func TestBusPreservesOrderPerTarget(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var seen []State
	bus.Subscribe("tv1", func(c StateChange) {
		mu.Lock()
		seen = append(seen, c.New)
		mu.Unlock()
	})

	sequence := []State{StateBuffering, StatePlaying, StatePaused, StatePlaying, StateIdle}
	prev := StateUnknown
	for _, next := range sequence {
		require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: prev, New: next}))
		prev = next
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(sequence)
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, sequence, seen)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	count := 0
	sub := bus.Subscribe("tv1", func(StateChange) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: StatePlaying, New: StateIdle}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	require.NoError(t, bus.Unsubscribe(sub.ID))
	require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: StateIdle, New: StatePlaying}))

	// Give the processor a chance to (incorrectly) deliver.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)

	assert.Error(t, bus.Unsubscribe(sub.ID), "second unsubscribe should fail")
}

func TestBusWildcardSubscription(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	targets := make(map[string]int)
	bus.Subscribe("", func(c StateChange) {
		mu.Lock()
		targets[c.Target]++
		mu.Unlock()
	})

	require.NoError(t, bus.Publish(StateChange{Target: "a", Old: StatePlaying, New: StateIdle}))
	require.NoError(t, bus.Publish(StateChange{Target: "b", Old: StatePlaying, New: StateIdle}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(targets) == 2
	})
}

func TestBusPublishRequiresTarget(t *testing.T) {
	bus := newTestBus(t)
	assert.Error(t, bus.Publish(StateChange{Old: StatePlaying, New: StateIdle}))
}

func TestBusPublishWhenStopped(t *testing.T) {
	bus := NewBus(4, hclog.NewNullLogger())
	assert.Error(t, bus.Publish(StateChange{Target: "tv1", New: StateIdle}))
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	bus := newTestBus(t)

	bus.Subscribe("tv1", func(StateChange) {
		panic("handler bug")
	})

	var mu sync.Mutex
	count := 0
	bus.Subscribe("tv1", func(StateChange) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: StatePlaying, New: StateIdle}))
	require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: StateIdle, New: StatePlaying}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	})
}

func TestParseState(t *testing.T) {
	tests := []struct {
		raw  string
		want State
	}{
		{"PLAYING", StatePlaying},
		{"playing", StatePlaying},
		{"IDLE", StateIdle},
		{"BUFFERING", StateBuffering},
		{"PAUSED", StatePaused},
		{"", StateUnknown},
		{"LOADING", StateUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseState(tt.raw), "raw %q", tt.raw)
	}
}

func TestBusStats(t *testing.T) {
	bus := newTestBus(t)

	bus.Subscribe("tv1", func(StateChange) {})
	require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: StatePlaying, New: StateIdle}))

	waitFor(t, func() bool {
		return bus.GetStats().Published == 1
	})

	stats := bus.GetStats()
	assert.Equal(t, int64(1), stats.ByTarget["tv1"])
	assert.Equal(t, 1, stats.ActiveSubscriptions)
	assert.NoError(t, bus.Health())
}

func TestBusStopDeliversBufferedChanges(t *testing.T) {
	bus := NewBus(16, hclog.NewNullLogger())
	require.NoError(t, bus.Start(context.Background()))

	gate := make(chan struct{})
	first := true

	var mu sync.Mutex
	var received []State
	bus.Subscribe("tv1", func(c StateChange) {
		if first {
			first = false
			<-gate
		}
		mu.Lock()
		received = append(received, c.New)
		mu.Unlock()
	})

	// Stall the processor on the first change so the rest sit in the buffer
	// when Stop is called.
	require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: StateIdle, New: StateBuffering}))
	require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: StateBuffering, New: StatePlaying}))
	require.NoError(t, bus.Publish(StateChange{Target: "tv1", Old: StatePlaying, New: StateIdle}))

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stopped <- bus.Stop(ctx)
	}()

	close(gate)
	require.NoError(t, <-stopped)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateBuffering, StatePlaying, StateIdle}, received)
}
