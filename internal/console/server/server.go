package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/config"
	"github.com/amoylab/webconsole/internal/common/errorx"
	"github.com/amoylab/webconsole/internal/console"
	"github.com/amoylab/webconsole/internal/console/auth"
	"github.com/amoylab/webconsole/internal/console/resource"
	"github.com/amoylab/webconsole/pkg/metrics"
)

//go:embed templates
var templates embed.FS

type (
	// Server exposes a Console over HTTP and WebSocket
	Server struct {
		logger     *zap.Logger
		cfg        *config.ConsoleConfig
		console    *console.Console
		metrics    *metrics.Metrics
		router     *gin.Engine
		httpServer *http.Server
		upgrader   websocket.Upgrader
		errs       *errorx.ErrorHandler
		shell      *template.Template
		// shutdownCh is closed to stop every websocket loop
		shutdownCh chan struct{}
	}
)

// NewServer creates the HTTP server of c. m may be nil.
func NewServer(logger *zap.Logger, cfg *config.ConsoleConfig, c *console.Console, m *metrics.Metrics) (*Server, error) {
	shell, err := template.ParseFS(templates, "templates/shell.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse shell template: %w", err)
	}

	logger = logger.Named("server")
	s := &Server{
		logger:  logger,
		cfg:     cfg,
		console: c,
		metrics: m,
		router:  gin.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin:      sameOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
		errs: errorx.NewErrorHandler(logger).
			Map(auth.ErrInvalidToken, errorx.ErrUnauthorized).
			Map(auth.ErrExpiredToken, errorx.ErrUnauthorized).
			Map(auth.ErrUnauthenticated, errorx.ErrUnauthorized).
			Map(resource.ErrInvalidPath, errorx.ErrInvalidInput),
		shell:      shell,
		shutdownCh: make(chan struct{}),
	}

	s.router.Use(s.recoveryMiddleware())
	s.router.Use(s.loggerMiddleware())
	s.router.Use(m.Middleware())
	if cfg.Tracing.Enabled {
		s.router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/health_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Health check passed.",
		})
	})
	if s.metrics != nil {
		s.router.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	g := s.router.Group(s.cfg.Prefix, s.userMiddleware())
	g.GET("/", s.handleShell)
	g.GET("/ws", s.handleWebSocket)
	g.GET("/admin/connections", s.handleConnections)
	for _, category := range resource.Categories {
		g.GET("/"+string(category)+"/*path", s.handleResource(category))
	}
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr), zap.String("prefix", s.cfg.Prefix))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start server", zap.Error(err))
		}
	}()
}

// Shutdown stops accepting requests and closes all websocket loops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
	return s.httpServer.Shutdown(ctx)
}

// sameOrigin accepts upgrades without Origin header and those whose
// Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
