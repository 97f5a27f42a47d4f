package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"taxipulse/internal/config"
	"taxipulse/internal/dataprocessing"
	apierrors "taxipulse/internal/errors"
	"taxipulse/internal/exporter"
	"taxipulse/internal/infrastructure"
	customMiddleware "taxipulse/internal/middleware"
	"taxipulse/internal/services"
	handlers "taxipulse/internal/transport/http"
	"taxipulse/internal/validation"
	"taxipulse/internal/watch"
	ws "taxipulse/internal/websocket"
)

// AppName is reported in startup logs
const AppName = "taxipulse"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	WebSocketHub  *ws.Hub
	Datasets      *services.DatasetService
	HealthService *services.HealthService
	Watcher       *watch.Watcher
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.PipelineMetrics
	Logger        *slog.Logger
}

// NewApplication wires every component from cfg. The hub is started; call
// Serve or Run to start the HTTP server.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", config.AppVersion))

	paths, err := config.GetPaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(cfg.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreatePipelineMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Paths:         paths,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		Logger:        logger,
	}

	if err := a.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	hub := ws.NewHub(a.Config.WebSocket, a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	loader := dataprocessing.NewLoader(dataprocessing.OptionsFromConfig(a.Config.Ingestion), a.Logger, a.Metrics)
	exp := exporter.NewExporter(a.Paths, a.Config.Export, a.Logger)

	a.Datasets = services.NewDatasetService(loader, exp, hub, a.Metrics, services.DatasetServiceOptions{
		Capacity: a.Config.Datasets.Capacity,
		IdleTTL:  a.Config.Datasets.IdleTTL,
	}, a.Logger)

	a.HealthService = services.NewHealthService(config.AppVersion, a.Paths, a.Datasets, hub, a.Logger)

	if a.Config.Watch.Enabled {
		validator := validation.NewFileValidator(a.Config.Ingestion.MaxUploadBytes, a.Logger)
		w, err := watch.New(a.Config.Watch, a.Paths.InboxDir, a.Datasets, hub, validator, a.Logger)
		if err != nil {
			hub.Stop()
			return fmt.Errorf("failed to initialize watcher: %w", err)
		}
		a.Watcher = w
	}
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	// RequestID comes first so every log line and problem carries the id
	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errorHandler.HandleError(w, r, apierrors.NotFoundError(r.URL.Path))
	})

	// the websocket route stays outside the group: its middleware wraps the ResponseWriter
	r.Handle("/ws", handlers.NewWebSocketHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger))

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(apierrors.RecoveryMiddleware(errorHandler))
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
				AllowedOrigins: a.Config.Security.AllowedOrigins,
			}))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r, errorHandler)
		r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP))
	})

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router, errorHandler *apierrors.ErrorHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(a.Config.Server.RequestTimeout))

		r.Mount("/health", handlers.NewHealthHandler(a.HealthService, a.Logger).Routes())

		datasetHandler := handlers.NewDatasetHandler(a.Datasets, a.Config.Ingestion.MaxUploadBytes,
			a.Config.Export.DefaultFormat, a.Logger, errorHandler)
		r.Mount("/datasets", datasetHandler.Routes())
		r.Mount("/analyses", datasetHandler.CatalogRoutes())
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Serve listens on the server address and blocks until ctx is canceled or
// the server fails, then shuts everything down.
func (a *Application) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		a.WebSocketHub.Stop()
		return fmt.Errorf("listen %s: %w", a.Server.Addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *Application) serve(ctx context.Context, ln net.Listener) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("address", ln.Addr().String()),
		slog.String("level", a.Config.Logging.Level),
		slog.Bool("watch_enabled", a.Watcher != nil))

	a.performStartupHealthCheck(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if a.Watcher != nil {
		g.Go(func() error { return a.Watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run serves until SIGINT or SIGTERM
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// performStartupHealthCheck logs readiness problems without failing startup
func (a *Application) performStartupHealthCheck(ctx context.Context) {
	status := a.HealthService.ReadinessCheck(ctx)
	if status.Status == "ready" {
		return
	}
	for name, svc := range status.Services {
		if svc.Status != "ready" {
			a.Logger.WarnContext(ctx, "Startup health check warning",
				slog.String("service", name),
				slog.String("message", svc.Message))
		}
	}
}
