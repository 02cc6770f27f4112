package castmodule

import (
	"context"
	"fmt"
	"time"

	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/dns"
)

const defaultCastPort = 8009

// castDiscoverer finds devices via mDNS.
type castDiscoverer struct {
	timeout time.Duration
}

// NewDiscoverer creates an mDNS-based discoverer. Each scan listens for the
// full timeout window and returns everything that answered.
func NewDiscoverer(timeout time.Duration) Discoverer {
	return &castDiscoverer{timeout: timeout}
}

func (d *castDiscoverer) Discover(ctx context.Context) ([]Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	entries, err := dns.DiscoverCastDNSEntries(scanCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns scan failed: %w", err)
	}

	var devices []Device
	for entry := range entries {
		port := entry.Port
		if port == 0 {
			port = defaultCastPort
		}
		devices = append(devices, Device{
			Name: entry.DeviceName,
			UUID: entry.UUID,
			Addr: entry.AddrV4.String(),
			Port: port,
		})
	}
	return devices, nil
}

// castConnector opens application sessions on discovered devices.
type castConnector struct{}

// NewConnector creates the production Connector.
func NewConnector() Connector {
	return &castConnector{}
}

func (castConnector) Connect(_ context.Context, device Device) (Connection, error) {
	app := application.NewApplication(
		application.WithDebug(false),
		application.WithCacheDisabled(true),
	)
	if err := app.Start(device.Addr, device.Port); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", device.Name, err)
	}
	return &castConnection{app: app}, nil
}

type castConnection struct {
	app *application.Application
}

func (c *castConnection) Load(streamURL, contentType string) error {
	// detach: the device keeps playing after Load returns rather than
	// holding this call for the duration of the track.
	return c.app.Load(streamURL, 0, contentType, false, true, true)
}

func (c *castConnection) StopMedia() error {
	return c.app.StopMedia()
}

func (c *castConnection) PlayerState() (string, error) {
	if err := c.app.Update(); err != nil {
		return "", err
	}
	_, media, _ := c.app.Status()
	if media == nil {
		return "IDLE", nil
	}
	return media.PlayerState, nil
}

func (c *castConnection) Close() error {
	return c.app.Close(false)
}
