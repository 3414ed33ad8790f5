package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venture-plan-server/internal/config"
	"venture-plan-server/internal/handler"
	"venture-plan-server/internal/logger"
	"venture-plan-server/internal/metrics"
	"venture-plan-server/internal/repository"
	"venture-plan-server/internal/service"
	"venture-plan-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type stores struct {
	versions repository.VersionRepository
	ventures repository.VentureRepository
	close    func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

// run returns only after the store is closed, so callers may exit right away.
func run(cfg *config.Config, log zerolog.Logger) error {
	st, err := openStores(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := st.close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		metricsHandler = promhttp.Handler()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsManager := websocket.NewManager(websocket.Config{
		MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, log)
	go wsManager.Run(ctx)

	locks := service.NewVentureLocks()
	ventureService := service.NewVentureService(st.ventures, locks, wsManager, log)
	versionService := service.NewVersionService(st.versions, st.ventures, locks, wsManager, m, log, service.VersionConfig{
		DefaultPageSize: cfg.Versions.DefaultPageSize,
		MaxPageSize:     cfg.Versions.MaxPageSize,
		CreateRetries:   cfg.Versions.CreateRetries,
	})

	r := handler.NewRouter(handler.RouterConfig{
		Ventures: handler.NewVentureHandler(ventureService, log),
		Versions: handler.NewVersionHandler(versionService, log),
		WebSocket: handler.NewWebSocketHandler(
			wsManager,
			ventureService,
			cfg.JWT.Secret,
			cfg.JWT.Issuer,
			cfg.WebSocket.ReadBufferSize,
			cfg.WebSocket.WriteBufferSize,
			log,
		),
		JWTSecret:      cfg.JWT.Secret,
		JWTIssuer:      cfg.JWT.Issuer,
		CORS:           cfg.CORS,
		Logger:         log,
		Metrics:        m,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("env", cfg.Server.Env).
			Str("driver", cfg.Store.Driver).
			Msg("starting venture plan server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	cancel()

	log.Info().Msg("server stopped gracefully")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StoreBadger:
		db, err := repository.OpenBadger(repository.BadgerConfig{
			Path:       cfg.Badger.Path,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: cfg.Badger.SyncWrites,
		}, log)
		if err != nil {
			return nil, err
		}
		return &stores{
			versions: repository.NewBadgerVersionRepository(db),
			ventures: repository.NewBadgerVentureRepository(db),
			close:    db.Close,
		}, nil

	default:
		client, err := kivik.New("couch", cfg.Database.URL())
		if err != nil {
			return nil, fmt.Errorf("connect to CouchDB: %w", err)
		}

		exists, err := client.DBExists(ctx, cfg.Database.Name)
		if err != nil {
			return nil, fmt.Errorf("check database existence: %w", err)
		}
		if !exists {
			if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
				return nil, fmt.Errorf("create database: %w", err)
			}
			log.Info().Str("database", cfg.Database.Name).Msg("created database")
		}

		versions := repository.NewVersionRepository(client, cfg.Database.Name)
		if err := versions.EnsureIndexes(ctx); err != nil {
			return nil, err
		}

		log.Info().
			Str("host", cfg.Database.Host).
			Str("port", cfg.Database.Port).
			Msg("connected to CouchDB")

		return &stores{
			versions: versions,
			ventures: repository.NewVentureRepository(client, cfg.Database.Name),
			close:    client.Close,
		}, nil
	}
}
