package castmodule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/mantonx/tunecast/internal/cache"
	"github.com/mantonx/tunecast/internal/config"
	"github.com/mantonx/tunecast/internal/events"
)

// Manager caches device connections and throttles network scans. Connections
// expire after a TTL of disuse; a watcher goroutine per connection polls the
// device and publishes player state transitions on the event bus.
type Manager struct {
	discoverer Discoverer
	connector  Connector
	bus        *events.Bus
	logger     hclog.Logger

	conns        *cache.TTL[*managedConn]
	scanLimiter  *rate.Limiter
	pollInterval time.Duration

	mu       sync.Mutex
	lastScan []Device
}

type managedConn struct {
	device Device
	conn   Connection
	cancel context.CancelFunc
}

// NewManager builds the connection manager from configuration.
func NewManager(cfg config.CastConfig, discoverer Discoverer, connector Connector, bus *events.Bus, logger hclog.Logger) *Manager {
	return &Manager{
		discoverer:   discoverer,
		connector:    connector,
		bus:          bus,
		logger:       logger.Named("cast"),
		conns:        cache.New[*managedConn](cfg.CacheTTL),
		scanLimiter:  rate.NewLimiter(rate.Every(cfg.ScanInterval), 1),
		pollInterval: cfg.StatusPollInterval,
	}
}

// Devices returns the known devices, rescanning the network at most once per
// scan interval. Between scans the previous results are served.
func (m *Manager) Devices(ctx context.Context) ([]Device, error) {
	if !m.scanLimiter.Allow() {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.lastScan, nil
	}

	devices, err := m.discoverer.Discover(ctx)
	if err != nil {
		m.logger.Warn("device scan failed", "error", err)
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.lastScan, err
	}

	m.logger.Debug("device scan complete", "found", len(devices))
	m.mu.Lock()
	m.lastScan = devices
	m.mu.Unlock()
	return devices, nil
}

// GetConnection returns a live connection to the named device, reusing a
// cached one when present. Matching is exact first, substring second, both
// case-insensitive.
func (m *Manager) GetConnection(ctx context.Context, target string) (Connection, error) {
	if mc, ok := m.conns.Get(target); ok {
		m.conns.Touch(target)
		return mc.conn, nil
	}

	devices, err := m.Devices(ctx)
	if err != nil && len(devices) == 0 {
		return nil, err
	}

	device, ok := matchDevice(devices, target)
	if !ok {
		return nil, notFoundError(target)
	}

	conn, err := m.connector.Connect(ctx, device)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	mc := &managedConn{device: device, conn: conn, cancel: cancel}
	m.conns.Put(target, mc)
	go m.watch(watchCtx, target, mc)

	m.logger.Info("connected to device", "target", target, "device", device.Name, "addr", device.Addr)
	return conn, nil
}

// Disconnect closes and forgets the connection for a target, if any.
func (m *Manager) Disconnect(target string) {
	if mc, ok := m.conns.Get(target); ok {
		m.conns.Invalidate(target)
		mc.cancel()
		if err := mc.conn.Close(); err != nil {
			m.logger.Debug("connection close failed", "target", target, "error", err)
		}
	}
}

// Close tears down every cached connection.
func (m *Manager) Close() {
	for _, target := range m.conns.Keys() {
		m.Disconnect(target)
	}
}

// watch polls the device and publishes state transitions. It also enforces
// the connection TTL: when the cache has evicted the entry, the watcher
// closes the connection and exits.
func (m *Manager) watch(ctx context.Context, target string, mc *managedConn) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	last := events.StateUnknown
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cached, ok := m.conns.Get(target)
		if !ok || cached != mc {
			m.logger.Debug("connection expired", "target", target)
			mc.cancel()
			mc.conn.Close()
			return
		}

		raw, err := mc.conn.PlayerState()
		if err != nil {
			m.logger.Debug("status poll failed", "target", target, "error", err)
			continue
		}

		state := events.ParseState(raw)
		if state == last {
			continue
		}
		if err := m.bus.Publish(events.StateChange{
			Target:    target,
			Old:       last,
			New:       state,
			Timestamp: time.Now(),
		}); err != nil {
			m.logger.Warn("state publish failed", "target", target, "error", err)
		}
		last = state
	}
}

func matchDevice(devices []Device, target string) (Device, bool) {
	want := strings.ToLower(target)
	for _, d := range devices {
		if strings.ToLower(d.Name) == want {
			return d, true
		}
	}
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), want) {
			return d, true
		}
	}
	return Device{}, false
}
