package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"kuji/auth"
	"kuji/config"
	"kuji/controlroom"
	"kuji/database"
	"kuji/events"
	"kuji/infrastructure"
	"kuji/overlay"
	"kuji/repository"
	"kuji/server"
	"kuji/service"
	"kuji/worker"
)

// ConfigureLogging applies the configured logrus level and format
func ConfigureLogging(cfg *config.Config) {
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting kuji server...")

	cfg := config.Get()

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("Closing database connection...")
		db.Close()
	}()

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	var (
		locker     service.DrawLocker = infrastructure.NewKeyedLocker()
		boardCache service.BoardCache
		limiter    controlroom.DrawLimiter
	)
	if cfg.RedisURL != "" {
		log.Info("Connecting to Redis...")
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()

		locker = infrastructure.NewRedisLocker(client)

		cache := infrastructure.NewBoardCache(client)
		sub := cache.InvalidateOn(eventBus)
		defer eventBus.Unsubscribe(sub)
		boardCache = cache

		if cfg.DrawRatePerSecond > 0 {
			limiter = infrastructure.NewDrawRateLimiter(client, cfg.DrawRatePerSecond)
		}
		log.Info("Redis locks, board cache and draw limiter enabled")
	} else {
		log.Warn("REDIS_URL not set, draws are serialized in-process only")
	}

	if cfg.NATSServers != "" {
		log.Info("Connecting to NATS...")
		nc := infrastructure.NewNATSClient(cfg.NATSServers, "kuji")
		if err := nc.Connect(ctx); err != nil {
			return err
		}
		defer nc.Close()

		relay := infrastructure.NewRelay(eventBus, nc)
		if err := relay.Start(); err != nil {
			return fmt.Errorf("failed to start sync relay: %w", err)
		}
		defer relay.Stop()
	}

	if cfg.DiscordToken != "" && cfg.DiscordChannelID != "" {
		log.Info("Opening Discord session...")
		session, err := infrastructure.NewDiscordSession(cfg.DiscordToken)
		if err != nil {
			return err
		}
		defer session.Close()

		announcer := infrastructure.NewDiscordAnnouncer(session, cfg.DiscordChannelID)
		announcer.Start(eventBus)
		defer announcer.Stop(eventBus)
	}

	cards, err := overlay.NewCardRenderer(cfg.CardFontPath)
	if err != nil {
		return fmt.Errorf("failed to load card font: %w", err)
	}

	srv := server.New(server.Dependencies{
		Boards:      service.NewBoardService(uowFactory, boardCache),
		Query:       service.NewQueryService(uowFactory, boardCache),
		Ledger:      service.NewLedgerService(uowFactory, locker),
		Overlay:     service.NewOverlayStateService(uowFactory),
		Bus:         eventBus,
		Issuer:      auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry()),
		Limiter:     limiter,
		Cards:       cards,
		RecentLimit: cfg.RecentDrawLimit,
		RevealDelay: cfg.RevealDelay,
		CORSOrigins: cfg.CORSOrigins,
	})

	reconciler := worker.NewReconciliationWorker(uowFactory, cfg.ReconcileSchedule)
	stopReconciler, err := reconciler.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start reconciliation worker: %w", err)
	}
	defer stopReconciler()

	log.WithField("environment", cfg.Environment).Info("kuji is running")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, ":"+cfg.ServerPort)
	})
	err = g.Wait()

	log.Info("Shutting down...")
	// let in-flight bus handlers finish before the deferred closers run
	time.Sleep(200 * time.Millisecond)
	return err
}
