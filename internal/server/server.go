// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: every repository, service and
// handler is created in New and wired to routes in setupRoutes, so main.go
// only loads config and starts the server.
//
// DEPENDENCY FLOW:
//
//	config → sqlite.DB ─┬→ AuthService ─────→ AuthHandler, AccountHandler
//	                    ├→ ProfileService ──→ AdminHandler
//	                    ├→ profile.Watcher ─→ gate.Gate → page middleware, GateHandler
//	analysis.Client ────┼→ AnalysisService ─→ AnalysisHandler ← progress.Tracker
//	                    │        └→ batch.Runner → batch.Registry → BatchHandler
//	                    └→ ToolsService ────→ ToolsHandler
//
// Redis, when configured, backs the profile notifier, the in-flight guard and
// the chat quota. Without it the in-process versions are used.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/leaseshield/internal/analysis"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/batch"
	"github.com/sakif/leaseshield/internal/config"
	"github.com/sakif/leaseshield/internal/gate"
	"github.com/sakif/leaseshield/internal/handler"
	"github.com/sakif/leaseshield/internal/middleware"
	"github.com/sakif/leaseshield/internal/profile"
	"github.com/sakif/leaseshield/internal/progress"
	"github.com/sakif/leaseshield/internal/ratelimit"
	"github.com/sakif/leaseshield/internal/report"
	sqliteRepo "github.com/sakif/leaseshield/internal/repository/sqlite"
	"github.com/sakif/leaseshield/internal/service"
	"github.com/sakif/leaseshield/internal/storage"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = 5 * time.Minute
	chatWindow      = 24 * time.Hour
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection, the Redis client and the batch
// registry; Start closes all three on the way out.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	clock   clockwork.Clock
	db      *sqliteRepo.DB
	redis   *redis.Client // nil without REDIS_URL
	tokens  *auth.TokenService
	batches *batch.Registry
	tracker *progress.Tracker

	// streams ends every open event stream once shutdown begins.
	streams     context.Context
	stopStreams context.CancelFunc
}

// components is everything setupRoutes needs, built once by New.
type components struct {
	gate     *gate.Gate
	watcher  *profile.Watcher
	auth     *service.AuthService
	profiles *service.ProfileService
	analyses *service.AnalysisService
	batches  *service.BatchService
	tools    *service.ToolsService
	google   *auth.GoogleProvider
	archive  handler.Archiver
}

// New opens every backing store and assembles the dependency chain.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		db:     db,
		tokens: tokens,
	}
	s.streams, s.stopStreams = context.WithCancel(context.Background())
	s.tracker = progress.NewTracker(s.clock, progress.DefaultTTL)

	c, err := s.build(ctx)
	if err != nil {
		s.close()
		return nil, err
	}

	if err := s.setupRoutes(c); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) build(ctx context.Context) (*components, error) {
	cfg := s.config

	var (
		notifier profile.Notifier
		guard    ratelimit.Guard
		chat     ratelimit.Limiter
	)
	if cfg.RedisURL != "" {
		rn, err := profile.NewRedisNotifier(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = rn.Client()
		notifier = rn
		guard = ratelimit.NewRedisGuard(s.redis, ratelimit.HoldFor(batch.MaxItems, cfg.APITimeout))
		limiter, err := ratelimit.NewFixedWindowLimiter(s.redis, "leaseshield:chat", cfg.ChatDailyLimit, chatWindow)
		if err != nil {
			return nil, err
		}
		chat = limiter
	} else {
		s.logger.Warn("REDIS_URL not set, using in-process profile events and limits")
		notifier = profile.NewLocalNotifier()
		guard = ratelimit.NewMemoryGuard()
		limiter, err := ratelimit.NewMemoryLimiter(s.clock, cfg.ChatDailyLimit, chatWindow)
		if err != nil {
			return nil, err
		}
		chat = limiter
	}

	routes, err := gate.DefaultRoutes()
	if err != nil {
		return nil, fmt.Errorf("loading route table: %w", err)
	}
	watcher := profile.NewWatcher(s.db, notifier, s.logger)

	api := analysis.NewClient(cfg.APIBaseURL, auth.NewBearerSource(s.tokens),
		analysis.WithTimeout(cfg.APITimeout),
		analysis.WithLogger(s.logger),
	)

	analyses := service.NewAnalysisService(api, s.db, guard, s.logger)
	s.batches = batch.NewRegistry(batch.NewRunner(analyses, s.clock, s.logger), s.clock, batch.DefaultTTL, s.logger)

	c := &components{
		gate:     gate.New(routes, cfg.AdminEmail, watcher),
		watcher:  watcher,
		auth:     service.NewAuthService(s.db, s.tokens, auth.NewPasswordService(), s.logger),
		profiles: service.NewProfileService(s.db, s.db, notifier, s.logger),
		analyses: analyses,
		batches:  service.NewBatchService(s.batches, guard, s.logger),
		tools:    service.NewToolsService(api, guard, chat, s.logger),
	}

	if cfg.GoogleClientID != "" {
		c.google = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	}

	if cfg.MinioEndpoint != "" {
		store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		c.archive = storage.NewArchive(store)
	}

	if !report.Available() {
		s.logger.Warn("no Chromium binary found, PDF export is disabled")
	}

	return c, nil
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: extracts the client IP from proxy headers
//  3. Recoverer: turns panics into 500s
//  4. Logger: logs each request with timing info
func (s *Server) setupRoutes(c *components) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	secure := s.config.Production()
	authHandler := handler.NewAuthHandler(c.auth, c.google, secure, s.logger)
	accountHandler := handler.NewAccountHandler(c.auth, c.profiles, s.db, s.config.GAMeasurementID, s.config.GTMID, s.logger)
	analysisHandler := handler.NewAnalysisHandler(c.analyses, report.NewPDFRenderer(), c.archive, s.tracker, s.logger)
	batchHandler := handler.NewBatchHandler(c.batches, s.logger)
	gateHandler := handler.NewGateHandler(c.gate, s.tokens, c.watcher, s.clock, s.logger)
	toolsHandler := handler.NewToolsHandler(c.tools, s.tracker, s.logger)
	progressHandler := handler.NewProgressHandler(s.tracker, s.logger)
	adminHandler := handler.NewAdminHandler(c.profiles, s.config.ProfileWebhookSecret, s.logger)

	pageHandler, err := handler.NewPageHandler(c.gate.Routes(), s.config.GAMeasurementID, s.config.GTMID, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	requireAuth := auth.RequireAuth(s.tokens)
	stream := handler.EndOnShutdown(s.streams)

	s.router.Get("/healthz", accountHandler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/google/login", authHandler.HandleGoogleLogin)
		r.Get("/google/callback", authHandler.HandleGoogleCallback)
	})

	s.router.Post("/webhooks/profile", adminHandler.HandleProfileWebhook)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/config", accountHandler.HandleConfig)
		r.Get("/gate", gateHandler.HandleDecision)
		r.With(stream).Get("/gate/events", gateHandler.HandleEvents)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", accountHandler.HandleMe)

			r.Post("/analyze", analysisHandler.HandleAnalyze)
			r.Get("/analyses", analysisHandler.HandleList)
			r.Get("/analyses/{id}", analysisHandler.HandleGet)
			r.Get("/analyses/{id}/report", analysisHandler.HandleReport)
			r.Get("/analyses/{id}/email-draft", analysisHandler.HandleEmailDraft)
			r.Get("/analyses/{id}/export.json", analysisHandler.HandleExportJSON)
			r.Get("/analyses/{id}/export.pdf", analysisHandler.HandleExportPDF)

			r.Post("/batches", batchHandler.HandleStart)
			r.Get("/batches/{id}", batchHandler.HandleGet)
			r.Delete("/batches/{id}", batchHandler.HandleCancel)
			r.With(stream).Get("/batches/{id}/events", batchHandler.HandleEvents)

			r.With(stream).Get("/progress/{id}/events", progressHandler.HandleEvents)

			r.Post("/analyze-image", toolsHandler.HandleAnalyzeImage)
			r.Post("/chat", toolsHandler.HandleChat)
			r.Post("/checkout", toolsHandler.HandleCheckout)

			// Paid tools share the gate decision of their page.
			r.With(handler.GuardAPI(c.gate, "/scan-expense")).Post("/scan-expense", toolsHandler.HandleScanExpense)
			r.With(handler.GuardAPI(c.gate, "/inspect-photos")).Post("/inspect-photos", toolsHandler.HandleInspectPhotos)
			agent := handler.GuardAPI(c.gate, "/agent")
			r.With(agent).Post("/agent", toolsHandler.HandleAgent)
			r.With(agent).Post("/real-estate/analyze", toolsHandler.HandleAgent)

			r.Route("/admin", func(r chi.Router) {
				r.Use(handler.RequireAdmin(s.config.AdminEmail))
				r.Get("/users", adminHandler.HandleListUsers)
				r.Put("/users/{id}/tier", adminHandler.HandleSetTier)
			})
		})
	})

	// Every page in the route table goes through the gate first.
	pages := s.router.With(c.gate.Middleware(s.tokens, s.logger))
	for _, route := range c.gate.Routes().All() {
		pages.Get(route.Path, pageHandler.HandlePage)
	}

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		s.close()
		return fmt.Errorf("listening: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
//
// GRACEFUL SHUTDOWN:
//  1. End open event streams, which never finish on their own
//  2. Stop accepting new HTTP connections and let in-flight requests finish
//  3. Cancel running batches and wait for them
//  4. Close Redis and the database (flushes WAL, releases the file lock)
//
// The server, the pruner and the shutdown watcher run in one errgroup:
// if any of them fails the others are stopped too.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.close()

	srv := &http.Server{
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams and analyses run far longer.
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("database", s.config.DBPath),
			slog.String("api", s.config.APIBaseURL),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := s.clock.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.Chan():
				s.batches.Prune()
				s.tracker.Prune()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.stopStreams()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
		}
		if err := s.batches.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stopping batches: %w", err))
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

func (s *Server) close() {
	s.stopStreams()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
