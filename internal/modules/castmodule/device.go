// Package castmodule manages cast device discovery, persistent connections,
// and playback control.
package castmodule

import (
	"context"
	"errors"
	"fmt"
)

// ErrDeviceNotFound is returned when discovery yields no device matching the
// requested target. Callers surface it; nothing is substituted silently.
var ErrDeviceNotFound = errors.New("cast device not found")

// Device is one discovered cast target on the network.
type Device struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
	Addr string `json:"addr"`
	Port int    `json:"port"`
}

// Discoverer scans the network for cast devices.
type Discoverer interface {
	Discover(ctx context.Context) ([]Device, error)
}

// Connector opens a control connection to a device.
type Connector interface {
	Connect(ctx context.Context, device Device) (Connection, error)
}

// Connection is an established session with a cast device.
type Connection interface {
	// Load starts playback of the given URL on the device.
	Load(streamURL, contentType string) error
	// StopMedia stops the current media without tearing down the session.
	StopMedia() error
	// PlayerState reports the device's current player state string,
	// refreshing the session status first.
	PlayerState() (string, error)
	// Close tears down the session.
	Close() error
}

func notFoundError(target string) error {
	return fmt.Errorf("no device matching %q: %w", target, ErrDeviceNotFound)
}
