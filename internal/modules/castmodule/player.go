package castmodule

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tunecast/internal/metadata"
)

const streamContentType = "audio/mp4"

// Player turns queue play requests into device load commands pointing at
// this server's stream proxy.
type Player struct {
	manager *Manager
	baseURL string
	logger  hclog.Logger
}

// NewPlayer creates a player. baseURL is the address cast devices use to
// reach this server, without a trailing slash.
func NewPlayer(manager *Manager, baseURL string, logger hclog.Logger) *Player {
	return &Player{
		manager: manager,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.Named("player"),
	}
}

// PlayTrack loads a track's proxied stream on the target device.
func (p *Player) PlayTrack(ctx context.Context, target string, track metadata.Track) error {
	conn, err := p.manager.GetConnection(ctx, target)
	if err != nil {
		return err
	}

	streamURL := fmt.Sprintf("%s/stream/%s", p.baseURL, track.VideoID)
	if err := conn.Load(streamURL, streamContentType); err != nil {
		return fmt.Errorf("load on %s failed: %w", target, err)
	}

	p.logger.Info("track loaded", "target", target, "video_id", track.VideoID, "title", track.Label())
	return nil
}

// StopPlayback stops the current media on the target. Missing connections
// are not an error; there is nothing to stop.
func (p *Player) StopPlayback(target string) error {
	mc, ok := p.manager.conns.Get(target)
	if !ok {
		return nil
	}
	if err := mc.conn.StopMedia(); err != nil {
		return fmt.Errorf("stop on %s failed: %w", target, err)
	}
	return nil
}
