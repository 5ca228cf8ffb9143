package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/askcos/prediction-gateway/internal/adapters"
	"github.com/askcos/prediction-gateway/internal/config"
	"github.com/askcos/prediction-gateway/internal/dispatch"
	"github.com/askcos/prediction-gateway/internal/gateway"
	"github.com/askcos/prediction-gateway/internal/monitoring"
	"github.com/askcos/prediction-gateway/internal/store"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 30 * time.Second

// runServe wires store, broker, registry, worker pools and the HTTP
// gateway, then runs until SIGINT/SIGTERM or a component fails.
func runServe(parent context.Context, cfg *config.Config, logger *monitoring.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics(nil)
	alerts := monitoring.NewAlertManager(logger, cfg.Monitoring.Alerts)
	requestLogger := monitoring.NewRequestLogger(logger)

	tracker, err := monitoring.NewTracker(cfg.Monitoring.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer tracker.Close()

	st, err := store.New(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	broker := dispatch.NewBroker(st, cfg.Broker, cfg.Backends.Queues(),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
		dispatch.WithTracker(tracker),
		dispatch.WithAlerts(alerts),
	)

	registry, err := adapters.Bootstrap(ctx, cfg.Backends, adapters.Deps{
		Broker:        broker,
		Logger:        logger,
		Metrics:       metrics,
		Alerts:        alerts,
		RequestLogger: requestLogger,
	}, nil)
	if err != nil {
		return fmt.Errorf("bootstrap adapters: %w", err)
	}

	workers := dispatch.NewWorkers(broker, cfg.Workers, registry.Executor())
	gw := gateway.New(cfg, gateway.Deps{
		Registry:      registry,
		Broker:        broker,
		Workers:       workers,
		Logger:        logger,
		Metrics:       metrics,
		Alerts:        alerts,
		RequestLogger: requestLogger,
	})

	logger.Info().
		Strs("adapters", registry.Names()).
		Interface("pools", workers.Sizes()).
		Msg("gateway ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workers.Run(gctx)
	})
	g.Go(func() error {
		if err := gw.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("gateway shutdown error")
		}
		broker.Close()
		return nil
	})

	err = g.Wait()
	logger.Info().Msg("prediction gateway stopped")
	return err
}
