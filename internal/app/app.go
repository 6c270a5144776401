package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/Impto-dev/license-bot/internal/backup"
	"github.com/Impto-dev/license-bot/internal/config"
	"github.com/Impto-dev/license-bot/internal/infrastructure"
	"github.com/Impto-dev/license-bot/internal/license"
	"github.com/Impto-dev/license-bot/internal/middleware"
	"github.com/Impto-dev/license-bot/internal/storage/sqlite"
	httptransport "github.com/Impto-dev/license-bot/internal/transport/http"
)

// VERSION is the current application version
const VERSION = "1.0.0"

// AppName identifies the service in startup logs.
const AppName = "licensed"

// Application represents the main application container
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *sqlite.Store
	Service   *license.Service
	Backups   *backup.Manager
	Scheduler *backup.Scheduler
	Router    *chi.Mux
	Server    *http.Server
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.String("database", cfg.Storage.DatabasePath))

	store, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open license store: %w", err)
	}

	app := &Application{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Service: license.NewService(store, logger),
	}

	if cfg.Backup.Enabled {
		manager, err := backup.NewManager(store, cfg.Backup.Dir, cfg.Backup.MaxBackups, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize backup manager: %w", err)
		}
		app.Backups = manager
		app.Scheduler = backup.NewScheduler(manager, cfg.Backup.Interval, logger)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(a.Logger))
	r.Use(middleware.Recoverer(a.Logger))
	r.Use(middleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
	}

	if a.Config.Security.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	licenseHandler := httptransport.NewLicenseHandler(a.Service, a.Logger)
	healthHandler := httptransport.NewHealthHandler(a.Store, VERSION, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(chimiddleware.Timeout(a.Config.Server.ReadTimeout))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/version", healthHandler.Version)

		licenseHandler.PublicRoutes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminOnly(a.Config.Auth, a.Logger))
			r.Mount("/licenses", licenseHandler.AdminRoutes())
			if a.Backups != nil {
				r.Mount("/backups", httptransport.NewBackupHandler(a.Backups, a.Logger).Routes())
			}
		})
	})

	a.Router = r
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the HTTP server and the backup scheduler and blocks until the
// context is cancelled or a component fails. The store is closed on the way
// out.
func (a *Application) Run(ctx context.Context) error {
	defer a.Store.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "http server listening",
			slog.String("addr", a.Server.Addr),
			slog.String("version", VERSION))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutting down application")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if a.Scheduler != nil {
		g.Go(func() error {
			return a.Scheduler.Run(ctx)
		})
	}

	err := g.Wait()

	a.Logger.Info("application shutdown complete")
	return err
}
