package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mantonx/tunecast/internal/config"
	"github.com/mantonx/tunecast/internal/database"
	"github.com/mantonx/tunecast/internal/events"
	"github.com/mantonx/tunecast/internal/logger"
	"github.com/mantonx/tunecast/internal/metadata"
	"github.com/mantonx/tunecast/internal/modules/castmodule"
	"github.com/mantonx/tunecast/internal/modules/queuemodule"
	"github.com/mantonx/tunecast/internal/modules/streammodule"
	"github.com/mantonx/tunecast/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "tunecast.yaml", "path to config file")
	flag.Parse()

	// Optional; a missing .env just means the environment is already set.
	godotenv.Load()

	manager := config.NewManager()
	if err := manager.Load(*configPath); err != nil {
		return err
	}
	cfg := manager.Get()

	log := logger.New(cfg.Logging.Level, cfg.Logging.EnableColors)
	log.Info("starting tunecast", "config", manager.Path())

	manager.AddWatcher(func(oldCfg, newCfg *config.Config) {
		if oldCfg.Logging.Level != newCfg.Logging.Level {
			log.SetLevel(logger.ParseLevel(newCfg.Logging.Level))
			log.Info("log level updated", "level", newCfg.Logging.Level)
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := manager.Watch(ctx, log); err != nil {
		log.Warn("config watch unavailable", "error", err)
	}

	db, err := database.Initialize(cfg.Database, log)
	if err != nil {
		return err
	}
	history := database.NewHistoryStore(db)

	bus := events.NewBus(64, log)
	if err := bus.Start(ctx); err != nil {
		return err
	}

	provider := metadata.NewService(log, cfg.Stream.PlaylistLimit, cfg.Stream.CookiesFile)

	externalURL := cfg.Server.ExternalURL
	if externalURL == "" {
		externalURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Warn("external_url not set; cast devices must be able to reach this address", "url", externalURL)
	}

	stream := streammodule.NewModule(cfg.Stream, externalURL, provider, log)

	cast := castmodule.NewManager(
		cfg.Cast,
		castmodule.NewDiscoverer(cfg.Cast.ScanTimeout),
		castmodule.NewConnector(),
		bus,
		log,
	)
	player := castmodule.NewPlayer(cast, externalURL, log)

	queues := queuemodule.NewManager(
		bus,
		player.PlayTrack,
		player.StopPlayback,
		stream.Resolver().Prefetch,
		history,
		log,
	)

	srv := server.New(cfg.Server, server.Deps{
		Bus:      bus,
		Stream:   stream,
		Cast:     cast,
		Queues:   queues,
		Provider: provider,
		History:  history,
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	queues.Shutdown()
	cast.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("event bus stop failed", "error", err)
	}
	return nil
}
