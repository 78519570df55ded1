package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"sensorhub/internal/api"
	"sensorhub/internal/config"
	"sensorhub/internal/coordinator"
	"sensorhub/internal/database"
	"sensorhub/internal/metrics"
	"sensorhub/internal/notify"
	"sensorhub/internal/queue"
	"sensorhub/internal/registry"
	"sensorhub/internal/store"
	"sensorhub/internal/transport"
)

// Application owns every long-lived component and brings them up and down in
// dependency order.
type Application struct {
	cfg    *config.Config
	logger zerolog.Logger

	db          *database.Manager
	sessions    *store.Store
	notifier    *notify.Notifier
	coordinator *coordinator.Coordinator
	adapter     *transport.Adapter
	server      *http.Server

	serverErr chan error
}

// New wires the full component graph. Nothing is started yet; Start does
// that.
func New(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.NewManager(database.Config{
		Path:         cfg.Database.Path,
		WriteTimeout: cfg.Database.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	outbound := queue.NewOutboundQueue(logger)
	devices := registry.NewRegistry(outbound, cfg.Sync.IssueHistoryLimit, logger)
	sessions := store.NewStore(db, logger)
	notifier := notify.NewNotifier(cfg.Sync.EventBufferSize, logger)
	adapter := transport.NewAdapter(logger)

	coord := coordinator.New(coordinator.Deps{
		Registry:  devices,
		Store:     sessions,
		Queue:     outbound,
		Transport: adapter,
		Notifier:  notifier,
		Metrics:   m,
	}, cfg.Sync.SweepInterval, logger)

	wsHandler := transport.NewHandler(adapter, coord, transport.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}, logger)

	apiServer := api.NewServer(coord, db, db, promReg, logger)

	root := chi.NewRouter()
	root.Get("/ws", wsHandler.HandleDevice)
	root.Mount("/", apiServer)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      root,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		cfg:         cfg,
		logger:      logger.With().Str("component", "app").Logger(),
		db:          db,
		sessions:    sessions,
		notifier:    notifier,
		coordinator: coord,
		adapter:     adapter,
		server:      server,
		serverErr:   make(chan error, 1),
	}, nil
}

// Start brings the components up and verifies the HTTP listener survives its
// first moments before reporting success.
func (a *Application) Start(ctx context.Context) error {
	if err := a.notifier.Start(ctx); err != nil {
		return fmt.Errorf("notifier start failed: %w", err)
	}
	if err := a.coordinator.StartSynchronization(ctx); err != nil {
		return fmt.Errorf("coordinator start failed: %w", err)
	}

	go func() {
		a.logger.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.serverErr <- err
		}
	}()

	select {
	case err := <-a.serverErr:
		return fmt.Errorf("http server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	a.logger.Info().Msg("application started")
	return nil
}

// Stop shuts components down in reverse start order. Every component gets a
// chance to stop even if an earlier one reports an error.
func (a *Application) Stop(ctx context.Context) error {
	var firstErr error

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown failed")
		firstErr = err
	}

	a.adapter.CloseAll()

	if err := a.coordinator.StopSynchronization(); err != nil {
		a.logger.Error().Err(err).Msg("coordinator stop failed")
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := a.notifier.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("notifier stop failed")
		if firstErr == nil {
			firstErr = err
		}
	}
	// Let in-flight session finalizations reach the database before it
	// closes.
	a.sessions.WaitForPersistence()

	if err := a.db.Close(); err != nil {
		a.logger.Error().Err(err).Msg("database close failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	a.logger.Info().Msg("application stopped")
	return firstErr
}

// ServerError exposes an asynchronous listener failure after startup.
func (a *Application) ServerError() <-chan error {
	return a.serverErr
}
