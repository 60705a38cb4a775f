package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/config"
	"wplace_overlay/internal/handler"
	"wplace_overlay/internal/httpapi"
	"wplace_overlay/internal/logger"
	"wplace_overlay/internal/monitor"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
	"wplace_overlay/internal/tilecache"
	"wplace_overlay/internal/utils"
	"wplace_overlay/internal/wplace"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "overlay:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	cache, err := tilecache.New(store, cfg.Cache.MaxSize, cfg.Cache.MemoryMaxCost, log.Named("tilecache"))
	if err != nil {
		return fmt.Errorf("init tile cache: %w", err)
	}

	settings, err := config.NewSettingsStore(cfg.DataDir, config.DefaultRenderSettings(cfg.Render))
	if err != nil {
		return fmt.Errorf("load render settings: %w", err)
	}
	initial, err := paramsFromSettings(settings.Get())
	if err != nil {
		log.Warn("stored render settings invalid, using defaults", zap.Error(err))
		initial = compositor.Params{}
	}

	limiter := utils.NewRateLimiter(cfg.Upstream.RateLimit)
	defer limiter.Close()
	client, err := wplace.NewClient(wplace.Config{
		TileURL:   cfg.Upstream.TileURL,
		RateLimit: cfg.Upstream.RateLimit,
		Timeout:   cfg.Upstream.Timeout,
		CacheTTL:  cfg.Upstream.CacheTTL,
	}, limiter, log.Named("wplace"))
	if err != nil {
		return fmt.Errorf("init upstream client: %w", err)
	}

	statsStore := stats.NewStore()
	engine := compositor.NewEngine(compositor.Deps{
		Registry:   overlay.NewRegistry(),
		Compositor: compositor.New(statsStore, log.Named("compositor")),
		Cache:      cache,
		Stats:      statsStore,
		Batch: stats.NewBatchRunner(client, statsStore, stats.BatchConfig{
			ChunkSize:    cfg.Stats.ChunkSize,
			ChunkPause:   cfg.Stats.ChunkPause,
			FetchTimeout: cfg.Stats.FetchTimeout,
		}, log.Named("batch")),
		Logger: log.Named("engine"),
		OnParamsChange: func(p compositor.Params, caching bool) {
			if err := settings.Update(func(s *config.RenderSettings) { applyParams(s, p, caching) }); err != nil {
				log.Error("failed to persist render settings", zap.Error(err))
			}
		},
	}, initial, settings.Get().CachingEnabled)
	defer engine.Close()

	server := httpapi.NewServer(httpapi.Options{
		Engine:      engine,
		Tiles:       client,
		Logger:      log.Named("http"),
		MaxUploadMB: cfg.Server.MaxUploadMB,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.ServerAddr()
		log.Info("http server listening", zap.String("addr", addr))
		if err := server.Start(addr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if cfg.Feed.URL != "" {
		mon := monitor.New(monitor.Options{
			URL:         cfg.Feed.URL,
			Invalidator: engine,
			Forgetter:   client,
			Logger:      log,
		})
		go mon.Run(ctx)
	}

	if cfg.Discord.Token != "" {
		session, err := openDiscord(cfg.Discord, engine, client, log)
		if err != nil {
			return err
		}
		defer session.Close()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server stopped", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}

// openStore returns the shared cache backend chosen by cache.backend.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (tilecache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := tilecache.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return tilecache.NewRedisStore(client, cfg.Redis.Prefix, log), func() { client.Close() }, nil
	case "postgres":
		db, err := tilecache.OpenPostgres(cfg.Postgres.DSN, cfg.Postgres.MaxConns, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := tilecache.NewPostgresStore(initCtx, db, log)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, func() { db.Close() }, nil
	}
	return tilecache.NewMemoryStore(), func() {}, nil
}

func openDiscord(cfg config.DiscordConfig, engine *compositor.Engine, tiles *wplace.Client, log *zap.Logger) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	h := handler.NewHandler(handler.Options{
		Prefix:  cfg.CommandPrefix,
		GuildID: cfg.GuildID,
		Engine:  engine,
		Tiles:   tiles,
		Logger:  log,
	})
	dg.AddHandler(h.OnReady)
	dg.AddHandler(h.OnMessage)
	dg.AddHandler(h.OnInteractionCreate)

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	return dg, nil
}
