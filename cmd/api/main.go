package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storegate.org/internal/auth"
	"storegate.org/internal/config"
	"storegate.org/internal/httpapi"
	"storegate.org/internal/migrate"
	"storegate.org/internal/obs"
	"storegate.org/internal/shop"
	"storegate.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	var (
		configFile = flag.String("config", "", "path to config.yaml (optional)")
		runMigrate = flag.Bool("migrate", false, "apply migrations and seeds before serving")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()

	store, err := pg.Open(cfg.Storage.DSN)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()

	if *runMigrate {
		mgr := migrate.NewManager(store.DB(), cfg.Storage.MigrationsDir, cfg.Storage.SeedsDir)
		if err := mgr.Up(ctx); err != nil {
			logger.Fatal("apply migrations", zap.Error(err))
		}
		if err := mgr.Seed(ctx); err != nil {
			logger.Fatal("apply seeds", zap.Error(err))
		}
	}

	codec, err := auth.NewCodec(cfg.Auth.SigningSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		logger.Fatal("init token codec", zap.Error(err))
	}
	authSvc, err := auth.NewService(store, codec)
	if err != nil {
		logger.Fatal("init auth service", zap.Error(err))
	}
	if err := authSvc.EnsureBuiltins(ctx); err != nil {
		logger.Fatal("ensure permission catalog", zap.Error(err))
	}
	shopSvc, err := shop.NewService(store)
	if err != nil {
		logger.Fatal("init shop service", zap.Error(err))
	}

	api := httpapi.New(httpapi.Options{
		Log:             logger,
		Auth:            authSvc,
		Shop:            shopSvc,
		ReadyProbe:      httpapi.ReadyProbe{DB: store.DB()},
		Version:         version,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logger.Info("starting storegate-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
