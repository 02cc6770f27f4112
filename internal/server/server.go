// Package server assembles the HTTP surface: stream and playlist endpoints
// plus the control API for queues, devices, search, and history.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tunecast/internal/config"
	"github.com/mantonx/tunecast/internal/database"
	"github.com/mantonx/tunecast/internal/events"
	"github.com/mantonx/tunecast/internal/metadata"
	"github.com/mantonx/tunecast/internal/modules/castmodule"
	"github.com/mantonx/tunecast/internal/modules/queuemodule"
	"github.com/mantonx/tunecast/internal/modules/streammodule"
)

// Server holds the wired application components and the HTTP listener.
type Server struct {
	cfg      config.ServerConfig
	logger   hclog.Logger
	router   *gin.Engine
	http     *http.Server
	bus      *events.Bus
	stream   *streammodule.Module
	cast     *castmodule.Manager
	queues   *queuemodule.Manager
	provider metadata.Provider
	history  *database.HistoryStore
}

// Deps are the constructed components the server exposes over HTTP.
type Deps struct {
	Bus      *events.Bus
	Stream   *streammodule.Module
	Cast     *castmodule.Manager
	Queues   *queuemodule.Manager
	Provider metadata.Provider
	History  *database.HistoryStore
}

// New builds the router and binds all routes.
func New(cfg config.ServerConfig, deps Deps, logger hclog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		router:   router,
		bus:      deps.Bus,
		stream:   deps.Stream,
		cast:     deps.Cast,
		queues:   deps.Queues,
		provider: deps.Provider,
		history:  deps.History,
	}

	if cfg.EnableCORS {
		router.Use(corsMiddleware())
	}
	s.registerRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Range")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
