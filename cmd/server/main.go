package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/alerts"
	"github.com/dennisdiepolder/monti/callmonitor/internal/api"
	"github.com/dennisdiepolder/monti/callmonitor/internal/auth"
	"github.com/dennisdiepolder/monti/callmonitor/internal/bus"
	"github.com/dennisdiepolder/monti/callmonitor/internal/calls"
	"github.com/dennisdiepolder/monti/callmonitor/internal/config"
	"github.com/dennisdiepolder/monti/callmonitor/internal/directory"
	"github.com/dennisdiepolder/monti/callmonitor/internal/event"
	"github.com/dennisdiepolder/monti/callmonitor/internal/keyphrase"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/pipeline"
	"github.com/dennisdiepolder/monti/callmonitor/internal/sentiment"
	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/stt"
	"github.com/dennisdiepolder/monti/callmonitor/internal/websocket"
	"github.com/dennisdiepolder/monti/callmonitor/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	keyphraseTopN   = 5
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Str("stt_vendor", cfg.STTVendor).
		Int("negative_streak_threshold", cfg.NegativeStreakThreshold).
		Str("alert_policy", string(cfg.AlertPolicy)).
		Msg("starting MONTI call monitor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

// openRelational connects to Postgres when databaseURL is set. An empty URL
// or an unreachable database falls back to the in-memory store.
func openRelational(ctx context.Context, databaseURL string, logger zerolog.Logger) (storage.Relational, func()) {
	if databaseURL == "" {
		logger.Warn().Msg("DATABASE_URL empty, using in-memory store (alerts and QA scores are not persisted)")
		return storage.NewMemoryStore(), func() {}
	}

	pg, err := storage.NewPostgres(ctx, databaseURL, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Postgres unavailable, using in-memory store (alerts and QA scores are not persisted)")
		return storage.NewMemoryStore(), func() {}
	}
	return pg, pg.Close
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.Logger

	// Relational store: directory, alerts, QA scores
	relational, closeRelational := openRelational(ctx, cfg.DatabaseURL, logger)
	defer closeRelational()

	// Snapshot store for ended calls
	snapshotCfg, err := storage.LoadSnapshotConfig()
	if err != nil {
		return fmt.Errorf("failed to load snapshot configuration: %w", err)
	}
	snapshots := storage.NewSnapshotStore(ctx, snapshotCfg, logger)
	if closer, ok := snapshots.(io.Closer); ok {
		defer closer.Close()
	}

	// Message bus
	msgBus := bus.New(bus.AMQPConfig{
		URL:             cfg.AMQPURL,
		TranscriptQueue: cfg.TranscriptQueue,
		SummaryQueue:    cfg.SummaryQueue,
	}, logger)
	defer msgBus.Close()

	// Speech-to-text
	recognizer, err := stt.New(ctx, cfg.STTVendor, stt.GoogleConfig{
		CredentialsFile: cfg.GoogleCredentials,
		Language:        cfg.STTLanguage,
		SampleRate:      cfg.STTSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize speech recognition: %w", err)
	}
	if closer, ok := recognizer.(io.Closer); ok {
		defer closer.Close()
	}

	// Session registry
	hub := websocket.NewHub(logger)

	// Supervisor directory
	dir := directory.New()
	refresher := directory.NewRefresher(dir, relational, cfg.DirectoryRefresh, logger)

	// Alerting and call lifecycle
	store := calls.NewStore()
	engine := alerts.NewEngine(alerts.Options{
		Threshold: cfg.NegativeStreakThreshold,
		Policy:    cfg.AlertPolicy,
	}, store, relational, dir, hub, logger)

	mgr := calls.NewManager(store, calls.Dependencies{
		Streaks:   engine,
		QAStore:   relational,
		Snapshots: snapshots,
		Publisher: msgBus,
		Directory: dir,
		Notifier:  hub,
	}, calls.Options{
		QAThreshold:     cfg.QAThreshold,
		PurgeGrace:      cfg.PurgeGrace,
		SnapshotWorkers: cfg.SnapshotWorkers,
	}, logger)
	reaper := calls.NewReaper(mgr, cfg.ReaperInterval, cfg.InactivityThreshold, logger)

	// Transcript pipeline
	pipe := pipeline.New(mgr, sentiment.NewLexicon(), keyphrase.NewFrequency(keyphraseTopN), engine, msgBus, hub, logger)

	// WebSocket handlers
	authn := auth.New(auth.OptionsFromEnv(), logger)
	timeouts := websocket.TimeoutsFrom(cfg)
	wsRouter := websocket.NewRouter(
		websocket.NewAgentHandler(hub, mgr, timeouts, logger),
		websocket.NewSupervisorHandler(hub, dir, store, mgr, relational, timeouts, logger),
		websocket.NewAudioHandler(mgr, pipe, recognizer, websocket.AudioOptions{
			SampleRate: cfg.STTSampleRate,
			Language:   cfg.STTLanguage,
		}, timeouts, logger),
		authn,
		logger,
	)

	// REST handlers
	callsHandler := api.NewCallsHandler(store, mgr, engine, logger)
	alertsHandler := api.NewAlertsHandler(relational, logger)
	historyHandler := api.NewAgentHistoryHandler(snapshots, logger)
	adminHandler := api.NewAdminHandler(hub, store, refresher, dir, logger)
	receiver := event.NewReceiver(pipe, logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Get().Handler())

	// Internal routes (no auth - for upstream recognizers on the private network)
	r.Route("/internal", func(r chi.Router) {
		r.Post("/transcripts", receiver.HandleUtterance)
		r.Get("/transcripts/stats", receiver.GetStats)
	})

	// REST routes
	r.Route("/api", func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Get("/calls", callsHandler.List)
		r.Get("/calls/{callId}", callsHandler.Get)
		r.Get("/agents/{agentId}/calls", historyHandler.GetCalls)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleSupervisor, auth.RoleAdmin))
			r.Post("/calls/{callId}/end", callsHandler.End)
			r.Get("/supervisors/{supervisorId}/alerts", alertsHandler.List)
			r.Post("/alerts/{alertId}/ack", alertsHandler.Acknowledge)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Get("/status", adminHandler.Status)
			r.Post("/directory/reload", adminHandler.ReloadDirectory)
		})
	})

	// Everything else is a websocket: UI connections authenticate inside the router
	r.Handle("/*", wsRouter)

	g, gctx := errgroup.WithContext(ctx)

	// Create HTTP server. Request contexts derive from gctx so hijacked audio legs see shutdown.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return gctx },
	}

	// The hub outlives ctx so agents still receive call_ended during shutdown
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	g.Go(func() error {
		return hub.Run(hubCtx)
	})
	g.Go(func() error {
		reaper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		refresher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return msgBus.Run(gctx, bus.ForwardSummaries(hub, logger))
	})
	g.Go(func() error {
		logger.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			logger.Error().Err(err).Msg("server forced to shutdown")
		}

		ended := mgr.EndAll(shutdownCtx, calls.ReasonShutdown)
		if waitErr := mgr.Wait(shutdownCtx); waitErr != nil {
			logger.Warn().Err(waitErr).Msg("call-end work still in flight at shutdown")
		}
		logger.Info().Int("calls_ended", ended).Msg("active calls ended")

		stopHub()
		return err
	})

	return g.Wait()
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"monti-callmonitor"}`)
}
