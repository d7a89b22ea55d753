package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/framehub/artframe/internal/api"
	"github.com/framehub/artframe/internal/art"
	"github.com/framehub/artframe/internal/art/adapters"
	"github.com/framehub/artframe/internal/commands"
	"github.com/framehub/artframe/internal/config"
	"github.com/framehub/artframe/internal/current"
	"github.com/framehub/artframe/internal/devices"
	"github.com/framehub/artframe/internal/logging"
	"github.com/framehub/artframe/internal/metrics"
	"github.com/framehub/artframe/internal/middleware"
	"github.com/framehub/artframe/internal/ota"
	"github.com/framehub/artframe/internal/pipeline"
	"github.com/framehub/artframe/internal/serial"
	"github.com/framehub/artframe/internal/store"

	_ "github.com/framehub/artframe/internal/art/adapters/artic"
	_ "github.com/framehub/artframe/internal/art/adapters/cleveland"
	_ "github.com/framehub/artframe/internal/art/adapters/curated"
	_ "github.com/framehub/artframe/internal/art/adapters/harvard"
	_ "github.com/framehub/artframe/internal/art/adapters/met"
	_ "github.com/framehub/artframe/internal/art/adapters/rijks"
	_ "github.com/framehub/artframe/internal/art/adapters/smithsonian"
	_ "github.com/framehub/artframe/internal/art/adapters/vam"
	_ "github.com/framehub/artframe/internal/art/adapters/wikimedia"
)

func main() {
	cfg, err := config.Load("config/default.yaml")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store: Postgres when DATABASE_URL is set, files otherwise.
	var st store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.NewPGStore(cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres store init failed", "err", err)
			os.Exit(1)
		}
		logger.Info("using postgres store")
	} else {
		st, err = store.NewFileStore(cfg.DataDir)
		if err != nil {
			logger.Error("file store init failed", "err", err)
			os.Exit(1)
		}
		logger.Info("using file store", "dir", cfg.DataDir)
	}
	defer st.Close()

	// Shared outbound HTTP client for museum APIs and image downloads.
	httpClient := &http.Client{Timeout: 30 * time.Second}

	// Search cache: Redis when configured, in-memory LRU otherwise.
	var cache art.SearchCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = art.NewRedisCache(rdb, cfg.CacheTTL())
		logger.Info("using redis search cache", "addr", cfg.RedisAddr)
	} else {
		cache = art.NewMemoryCache(cfg.Search.CacheSize, cfg.CacheTTL())
	}

	// Optional NATS event publishing.
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("artframe-server"))
		if err != nil {
			logger.Warn("nats connect failed, events disabled", "err", err)
			nc = nil
		} else {
			defer nc.Close()
			logger.Info("connected to nats", "url", cfg.NATSURL)
		}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("bad timezone, falling back to Local", "tz", cfg.Timezone)
		loc = time.Local
	}

	// Components.
	sources := adapters.Build(adapters.Deps{Client: httpClient})
	federator := art.NewFederator(sources, cache, art.FederatorConfig{
		AdapterTimeout: cfg.AdapterTimeout(),
		OverallTimeout: cfg.OverallTimeout(),
	}, logger)
	importer := art.NewImporter(httpClient)
	aiGen := art.NewAIGenerator(httpClient, cfg.OpenAIKey)

	pool := pipeline.NewPool(pipeline.NewProcessor(logger), cfg.Pipeline.Workers)
	currentSvc := current.NewService(st, logger)

	notifier := devices.NewWebhookNotifier(cfg.WebhookURL, httpClient, nc, "", logger)
	registry := devices.NewRegistry(st, notifier, logger)
	queue := commands.NewQueue(st, logger)

	otaSvc := ota.NewService(cfg.Firmware.Dir, st, cfg.Firmware.Version, cfg.Firmware.Build, logger)
	if err := otaSvc.Watch(ctx); err != nil {
		logger.Warn("firmware watcher unavailable", "err", err)
	}

	hub := serial.NewHub(st, logger)
	collector := metrics.NewCollector()
	auth := middleware.NewAPIKeyAuth(cfg.APIKey)

	router := api.NewRouter(api.Handlers{
		Device:   api.NewDeviceHandler(currentSvc, registry, queue, collector, loc, cfg.DefaultDeviceID, logger),
		Art:      api.NewArtHandler(federator, importer, aiGen, pool, currentSvc, collector, logger),
		Image:    api.NewImageHandler(pool, currentSvc, collector, logger),
		Playlist: api.NewPlaylistHandler(currentSvc, logger),
		Settings: api.NewSettingsHandler(currentSvc, logger),
		Firmware: api.NewFirmwareHandler(otaSvc, logger),
		Serial:   api.NewSerialHandler(hub, st, logger),
		Metrics:  collector,
		Auth:     auth,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("artframe server listening", "port", cfg.Port, "sources", len(sources))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
