// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/admission"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/artifact"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/config"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/database"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/handler"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/logging"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/notify"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository/memory"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/service"
)

// recordStore is the registration side of a storage backend.
type recordStore interface {
	admission.PairFinder
	service.RegistrationStore
	handler.Pinger
}

// stores is one configured storage backend.
type stores struct {
	events  service.EventStore
	records recordStore
	close   func()
}

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Configuration and logging ─────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	m := metrics.New(prometheus.DefaultRegisterer)

	// ── 2. Storage ───────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	files, closeFiles, err := openArtifacts(cfg.Artifact)
	if err != nil {
		return err
	}
	defer closeFiles()

	// ── 3. Notifications ─────────────────────────────────────────────────
	pubsub := notify.NewInProcess()
	defer pubsub.Close()
	if err := notify.Consume(ctx, pubsub, notify.LogRegistration); err != nil {
		return err
	}

	// ── 4. Wire up layers ────────────────────────────────────────────────
	coord, err := admission.NewCoordinator(st.events, st.records, files,
		admission.WithMetrics(m),
		admission.WithNotifier(notify.NewPublisher(pubsub)),
		admission.WithStepTimeout(cfg.Admission.StepTimeout),
		admission.WithMinAge(cfg.Admission.MinAge),
		admission.WithDocumentRules(cfg.Artifact.MaxBytes, cfg.Artifact.AllowedTypes),
	)
	if err != nil {
		return err
	}
	eventSvc := service.NewEventService(st.events, st.records, coord, admission.NewGate(st.records))
	eventHandler := handler.NewEventHandler(eventSvc, cfg.Artifact.MaxBytes)

	router := handler.NewRouter(eventHandler, handler.RouterConfig{
		Health:            st.records,
		Artifacts:         files,
		Metrics:           promhttp.Handler(),
		CORSOrigins:       cfg.Server.CORSOrigins,
		RegisterRateLimit: cfg.Server.RegisterRateLimit,
	})

	// ── 5. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info().Int("port", cfg.Server.Port).Str("storage", cfg.Storage.Driver).
			Str("artifacts", cfg.Artifact.Driver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logging.Info().Msg("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logging.Info().Str("host", cfg.Database.Host).Msg("connected to PostgreSQL")
		return &stores{
			events:  repository.NewEventRepository(pool),
			records: repository.NewRegistrationRepository(pool),
			close:   pool.Close,
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logging.Info().Str("path", cfg.Storage.SQLitePath).Msg("opened SQLite store")
		return &stores{events: store, records: store, close: func() { _ = store.Close() }}, nil

	default:
		logging.Warn().Msg("using in-memory store; data is lost on restart")
		store := memory.New()
		return &stores{events: store, records: store, close: func() {}}, nil
	}
}

func openArtifacts(cfg config.ArtifactConfig) (artifact.Store, func(), error) {
	var (
		backend artifact.Store
		closer  io.Closer
	)
	switch cfg.Driver {
	case config.ArtifactBadger:
		db, err := artifact.OpenBadger(cfg.Root, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = db, db
	default:
		dir, err := artifact.NewFSStore(cfg.Root, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		backend = dir
	}

	breaker := artifact.NewBreaker(backend, artifact.BreakerSettings{
		Name:                "artifact-" + cfg.Driver,
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerTimeout,
	})
	return breaker, func() {
		if closer != nil {
			if err := closer.Close(); err != nil {
				logging.Error().Err(err).Msg("close artifact store")
			}
		}
	}, nil
}
