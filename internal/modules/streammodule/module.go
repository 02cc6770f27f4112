package streammodule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tunecast/internal/cache"
	"github.com/mantonx/tunecast/internal/config"
	"github.com/mantonx/tunecast/internal/metadata"
)

// Module wires stream resolution and the HTTP byte proxy together.
type Module struct {
	resolver    *Resolver
	provider    metadata.Provider
	httpClient  *http.Client
	externalURL string
	logger      hclog.Logger
}

// NewModule builds the stream module from configuration.
func NewModule(cfg config.StreamConfig, externalURL string, provider metadata.Provider, logger hclog.Logger) *Module {
	log := logger.Named("stream")

	extractors := []Extractor{
		NewPrimaryExtractor(cfg.CookiesFile),
		NewSecondaryExtractor(cfg.CookiesFile),
	}
	resolver := NewResolver(
		cache.New[*StreamInfo](cfg.CacheTTL),
		extractors,
		cfg.MaxConcurrentExtracts,
		log,
	)

	return &Module{
		resolver: resolver,
		provider: provider,
		// The header timeout bounds time to first byte only; body reads
		// may legitimately last the length of a track.
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.UpstreamTimeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		externalURL: externalURL,
		logger:      log,
	}
}

// Resolver exposes the cache-backed resolver for queue prefetching.
func (m *Module) Resolver() *Resolver {
	return m.resolver
}

// RegisterRoutes mounts the stream and playlist endpoints.
func (m *Module) RegisterRoutes(r gin.IRouter) {
	r.GET("/stream/:videoID", m.handleStream)
	r.HEAD("/stream/:videoID", m.handleStream)
	r.GET("/m3u/:listID", m.handleM3U)
}
