package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crashgame/internal/cache"
	"crashgame/internal/config"
	"crashgame/internal/database"
	"crashgame/internal/game"
	"crashgame/internal/logger"
	"crashgame/internal/metrics"
	"crashgame/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	log, err := logger.New(logger.Config{
		App:   "crashgame",
		Level: cfg.Log.Level,
		Mode:  cfg.Log.Mode,
		Dir:   cfg.Log.Dir,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store     game.Store
		cacheSvc  cache.Service
		healthSvc server.HealthChecker
	)
	cacheSvc, err = cache.New(ctx, cfg.Redis, cfg.Game.HistoryCapacity, log)
	if err != nil {
		log.Warn("redis unavailable, balances and history stay in memory", zap.Error(err))
		store = game.NewMemoryStore(cfg.Game.HistoryCapacity)
	} else {
		defer cacheSvc.Close()
		store = cacheSvc
		healthSvc = cacheSvc
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ledger := game.NewLedger(store, cfg.Game.StartingBalance, log)
	hub := game.NewHub(cfg.Game.ClientBuffer, log, m)

	opts := []game.Option{
		game.WithHistoryStore(store),
		game.WithLogger(log),
		game.WithMetrics(m),
	}

	var (
		archive  server.Archive
		archiver *game.Archiver
	)
	if cfg.Database.Enabled {
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(cfg.Database.DSN(), cfg.Database.MigrationsPath); err != nil {
				return err
			}
		}
		db, err := database.New(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()

		archiver, err = game.NewArchiver(db, cfg.ArchiveWorkers, log)
		if err != nil {
			return err
		}
		archive = db
		opts = append(opts, game.WithRecorder(archiver))
	}

	engine, err := game.NewEngine(cfg.Game, ledger, hub, opts...)
	if err != nil {
		return err
	}

	app := server.New(server.Deps{
		Engine:   engine,
		Ledger:   ledger,
		Hub:      hub,
		Cache:    healthSvc,
		Archive:  archive,
		Gatherer: reg,
		Logger:   log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		log.Info("listening", zap.String("port", cfg.Port))
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.Shutdown()
	})

	err = g.Wait()

	if archiver != nil {
		if cerr := archiver.Close(10 * time.Second); cerr != nil {
			log.Warn("archive did not drain", zap.Error(cerr))
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}
