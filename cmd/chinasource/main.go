package main

import (
	"context"
	"errors"
	stdlog "log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chinasource/internal/authz"
	"chinasource/internal/config"
	"chinasource/internal/http/handlers"
	applog "chinasource/internal/log"
	"chinasource/internal/mail"
	"chinasource/internal/realtime"
	"chinasource/internal/repos"
	"chinasource/internal/storage"
	"chinasource/web"
)

func main() {
	cfg := config.Load()

	logger, err := applog.New(applog.Config{Level: cfg.LogLevel, Env: cfg.Env, File: cfg.LogFile})
	if err != nil {
		stdlog.Fatalf("[log] %v", err)
	}
	defer func() { _ = logger.Sync() }()
	applog.SetLogger(logger)

	db, err := repos.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Admin seed
	if email := authz.FirstEmail(cfg.AdminEmails); email != "" && cfg.AdminPassword != "" {
		created, err := repos.SeedUser(ctx, db, uuid.NewString(), email, "Admin", cfg.AdminPassword)
		if err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
		if created {
			logger.Info("seeded admin account", zap.String("email", email))
		}
	}

	// Object storage
	signer := storage.NewSigner(cfg.BackendKey, cfg.BackendURL+cfg.BasePath+"/storage")
	disk := storage.NewDisk(cfg.StorageDir, cfg.StorageBucket, signer)
	if err := disk.EnsureBucket(); err != nil {
		logger.Fatal("create storage bucket", zap.Error(err), zap.String("bucket", cfg.StorageBucket))
	}

	// Realtime
	var hub realtime.Hub = realtime.NewMemoryHub()
	if cfg.RedisAddr != "" {
		rh, err := realtime.NewRedisHub(cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			logger.Warn("redis unavailable, falling back to in-process events", zap.Error(err))
		} else {
			defer rh.Close()
			hub = rh
		}
	}

	// Mail
	var sender mail.Sender = mail.LogSender{Log: logger}
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := handlers.NewDeps(db, cfg, handlers.Backends{
		Disk:     disk,
		Hub:      hub,
		Mail:     sender,
		Registry: registry,
		Log:      logger,
	})
	opts := handlers.DefaultOptions()
	opts.AccessLog = cfg.Env == "development"
	app := handlers.NewApp(cfg, deps, web.Engine(), opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("port", cfg.Port), zap.String("base", cfg.BasePath))
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		deps.Streams.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}
