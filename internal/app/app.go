// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/oncall-bridge/internal/chatwoot"
	"github.com/bissquit/oncall-bridge/internal/config"
	"github.com/bissquit/oncall-bridge/internal/oncall"
	"github.com/bissquit/oncall-bridge/internal/oneuptime"
	"github.com/bissquit/oncall-bridge/internal/pkg/ctxlog"
	"github.com/bissquit/oncall-bridge/internal/pkg/httputil"
	"github.com/bissquit/oncall-bridge/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const bootTimeout = 30 * time.Second

// refresher is a credential source with a background refresh loop.
type refresher interface {
	Refresh(ctx context.Context) error
	Start(ctx context.Context)
	Stop()
}

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	startedAt     time.Time
	server        *http.Server
	metricsServer *http.Server

	backgroundCancel context.CancelFunc

	oneuptime *oneuptime.Client
	refresher refresher
	tracker   *oncall.Tracker
	poller    *oncall.Poller
	webhook   *oncall.Handler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	chat, err := chatwoot.NewClient(chatwoot.Config{
		BaseURL:   cfg.Chatwoot.BaseURL,
		APIToken:  cfg.Chatwoot.APIToken,
		AccountID: cfg.Chatwoot.AccountID,
		Timeout:   cfg.Chatwoot.RequestTimeout,
		RateLimit: cfg.Chatwoot.RateLimit,
		RateBurst: cfg.Chatwoot.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("create chatwoot client: %w", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), bootTimeout)
	defer bootCancel()

	if chat.AccountID() == "" {
		if _, err := chat.ResolveAccountID(bootCtx); err != nil {
			return nil, fmt.Errorf("resolve chatwoot account: %w", err)
		}
	}

	return newApp(bootCtx, cfg, logger, chat)
}

func newApp(bootCtx context.Context, cfg *config.Config, logger *slog.Logger, chat *chatwoot.Client) (*App, error) {
	backgroundCtx, backgroundCancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))

	app := &App{
		config:           cfg,
		logger:           logger,
		startedAt:        time.Now(),
		backgroundCancel: backgroundCancel,
	}

	var credentials oneuptime.CredentialSource
	if cfg.OneUptime.Static() {
		credentials = oneuptime.StaticCredentials(oneuptime.Credentials{
			BaseURL:   cfg.OneUptime.BaseURL,
			ProjectID: cfg.OneUptime.ProjectID,
			APIKey:    cfg.OneUptime.APIKey,
		}.Normalize())
		logger.Info("using configured OneUptime credentials", "project_id", cfg.OneUptime.ProjectID)
	} else {
		hook := oneuptime.NewHookCredentials(chat, cfg.OneUptime.HookRefresh)
		if err := hook.Refresh(bootCtx); err != nil {
			logger.Warn("OneUptime integration not available yet, will retry on first request", "error", err)
		}
		credentials = hook
		app.refresher = hook
	}

	app.oneuptime = oneuptime.NewClient(oneuptime.Config{Timeout: cfg.OneUptime.RequestTimeout}, credentials)

	renderer, err := oncall.NewRenderer()
	if err != nil {
		backgroundCancel()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	app.tracker = oncall.NewTracker()

	orchestrator := oncall.NewOrchestrator(oncall.OrchestratorConfig{
		ChatBaseURL: chat.BaseURL(),
		AccountID:   chat.AccountID(),
	}, chat, app.oneuptime, app.tracker, renderer)

	app.webhook = oncall.NewHandler(oncall.HandlerConfig{
		OrchestrationTimeout: cfg.Webhook.OrchestrationTimeout,
	}, orchestrator, chat)

	app.poller = oncall.NewPoller(oncall.PollerConfig{
		Interval:    cfg.Poller.Interval,
		ItemTimeout: cfg.Poller.ItemTimeout,
	}, app.tracker, app.oneuptime, chat, renderer)

	app.poller.Start(backgroundCtx)
	if app.refresher != nil {
		app.refresher.Start(backgroundCtx)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"poll_interval", a.config.Poller.Interval,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops background loops and servers, then drains in-flight
// orchestrations.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Cancel first so a hung upstream call cannot hold Stop.
	a.backgroundCancel()
	a.poller.Stop()
	if a.refresher != nil {
		a.refresher.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	appendErr := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			appendErr(fmt.Errorf("shutdown server: %w", err))
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			appendErr(fmt.Errorf("shutdown metrics server: %w", err))
		}
	}()

	wg.Wait()

	if err := a.webhook.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain orchestrations: %w", err))
	}

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Tracker returns the incident link table.
func (a *App) Tracker() *oncall.Tracker {
	return a.tracker
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/health", a.healthHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Group(func(r chi.Router) {
		r.Use(httputil.WebhookTokenMiddleware(a.config.Webhook.Token))
		a.webhook.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.oneuptime.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Warn("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "OneUptime not connected")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

type healthResponse struct {
	Status             string `json:"status"`
	OneUptimeConnected bool   `json:"oneuptime_connected"`
	TrackedIncidents   int    `json:"tracked_incidents"`
	Uptime             int64  `json:"uptime"`
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	httputil.JSON(w, http.StatusOK, healthResponse{
		Status:             "ok",
		OneUptimeConnected: a.oneuptime.Ping(ctx) == nil,
		TrackedIncidents:   a.tracker.Size(),
		Uptime:             int64(time.Since(a.startedAt).Seconds()),
	})
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
