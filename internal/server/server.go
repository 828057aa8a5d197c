package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"aiknife/internal/config"
	"aiknife/internal/openrouter"
	"aiknife/internal/overlay"
	"aiknife/internal/pipeline"
	"aiknife/internal/settings"
	"aiknife/internal/tasks"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
	writeTimeoutMargin  = 15 * time.Second
)

// Deps are the collaborators the HTTP layer exposes.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Registry *tasks.Registry
	Clients  *openrouter.Holder
	Settings *settings.Store
	Board    *overlay.Board
}

type Server struct {
	cfg     config.Config
	deps    Deps
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil || deps.Registry == nil || deps.Clients == nil || deps.Settings == nil {
		return nil, errors.New("server dependencies must not be nil")
	}
	if deps.Board == nil {
		deps.Board = overlay.NewBoard()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: allowExtensionOrigin,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	srv := &Server{
		cfg:     cfg,
		deps:    deps,
		app:     e,
		address: cfg.Address(),
	}

	srv.registerRoutes()

	return srv, nil
}

// allowExtensionOrigin admits browser extension pages only.
func allowExtensionOrigin(origin string) (bool, error) {
	return strings.HasPrefix(origin, "chrome-extension://") || strings.HasPrefix(origin, "moz-extension://"), nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.address)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: s.writeTimeout(),
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

// writeTimeout leaves room for a full streamed answer; no stream timeout
// means no write timeout.
func (s *Server) writeTimeout() time.Duration {
	if s.cfg.OpenRouter.StreamTimeout <= 0 {
		return 0
	}
	return s.cfg.OpenRouter.StreamTimeout + writeTimeoutMargin
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)

	v1 := s.app.Group("/v1")
	v1.GET("/menu", s.handleMenu)
	v1.POST("/tasks", s.handleTask)
	v1.GET("/overlay/:tab", s.handleOverlay)
	v1.DELETE("/overlay/:tab", s.handleHideOverlay)
	v1.GET("/models", s.handleModels)
	v1.GET("/auth", s.handleAuth)
	v1.GET("/settings", s.handleGetSettings)
	v1.PUT("/settings", s.handlePutSettings)
}

func printStartupBanner(address string) {
	fmt.Println()
	fmt.Println("aiknife ready")
	fmt.Printf("Listening on http://%s\n", address)
	fmt.Println("Endpoints:")
	fmt.Println("  GET    /health")
	fmt.Println("  GET    /v1/menu")
	fmt.Println("  POST   /v1/tasks")
	fmt.Println("  GET    /v1/overlay/:tab")
	fmt.Println("  DELETE /v1/overlay/:tab")
	fmt.Println("  GET    /v1/models")
	fmt.Println("  GET    /v1/auth")
	fmt.Println("  GET    /v1/settings")
	fmt.Println("  PUT    /v1/settings")
	fmt.Printf("Example:\n  curl -N http://%s/v1/tasks -H 'Accept: text/event-stream' -H 'Content-Type: application/json' -d '{\"menu_item_id\":\"analyze_summarize\",\"selection_text\":\"...\",\"tab_id\":1}'\n\n", address)
}
