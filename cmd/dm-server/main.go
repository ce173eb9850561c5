package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sds/internal/config"
	"sds/internal/db"
	"sds/internal/dm"
	"sds/internal/mqtt"
	"sds/internal/sessions"
)

func main() {
	level := slog.LevelInfo
	cfg, err := config.LoadDMServerConfig()
	if err == nil && cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		recorder dm.Recorder
		logs     logReader
	)
	if cfg.DBDSN != "" {
		store, err := db.New(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("connect db failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			logger.Error("migrate db failed", "error", err)
			os.Exit(1)
		}
		recorder, logs = store, store
	} else {
		logger.Warn("DB_DSN not set, dialogue log disabled")
	}

	registry, err := sessions.NewRegistry(sessions.Config{
		ManagerType: cfg.DMType,
		Tick:        cfg.MainLoopSleep,
		BufferSize:  cfg.SessionBuffer,
		Debug:       cfg.Debug,
		Recorder:    recorder,
	}, logger)
	if err != nil {
		logger.Error("init session registry failed", "error", err)
		os.Exit(1)
	}

	var bus sessions.Sink
	if cfg.MQTTEnabled {
		hub := mqtt.NewHub(mqtt.HubConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, registry, logger)
		if err := hub.Start(ctx); err != nil {
			logger.Error("start mqtt hub failed", "error", err)
			os.Exit(1)
		}
		bus = hub
	}

	srv := newServer(ctx, registry, bus, logs, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dm server started",
			"addr", cfg.HTTPAddr,
			"dm_type", cfg.DMType,
			"tick", cfg.MainLoopSleep,
			"mqtt_enabled", cfg.MQTTEnabled,
			"dialogue_log", recorder != nil,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	registry.StopAll(shutdownCtx)
}
