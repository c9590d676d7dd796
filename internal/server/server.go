package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/auth/jwt"
	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/event"
	"github.com/openorbit/agenthub/internal/gate"
	"github.com/openorbit/agenthub/internal/lifecycle"
	"github.com/openorbit/agenthub/internal/registry"
	"github.com/openorbit/agenthub/pkg/metrics"
)

// Server is the HTTP/WS transport in front of the session core. It is
// a thin adapter: sessions, ordering, and fan-out live in the registry,
// gate, and bus; the server only maps requests onto them.
type Server struct {
	logger      *zap.Logger
	cfg         *config.Config
	router      *gin.Engine
	metrics     *metrics.Metrics
	bus         event.Bus
	registry    *registry.Registry
	gate        *gate.Gate
	coordinator *lifecycle.Coordinator
	jwtService  *jwt.Service
	httpSrv     *http.Server
	// shutdownCh releases every streaming connection during shutdown
	shutdownCh chan struct{}
	upgrader   websocket.Upgrader
}

// New creates the server and registers all routes.
func New(logger *zap.Logger, cfg *config.Config, m *metrics.Metrics, bus event.Bus, reg *registry.Registry, g *gate.Gate, coord *lifecycle.Coordinator) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		logger:      logger.Named("server"),
		cfg:         cfg,
		router:      gin.New(),
		metrics:     m,
		bus:         bus,
		registry:    reg,
		gate:        g,
		coordinator: coord,
		shutdownCh:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}

	if cfg.Auth.Enabled {
		svc, err := jwt.NewService(jwt.Config{
			SecretKey: cfg.Auth.JWT.SecretKey,
			Duration:  cfg.Auth.JWT.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init jwt service: %w", err)
		}
		s.jwtService = svc
	}

	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.recoveryMiddleware())
	if cfg.Metrics.Enabled {
		s.router.Use(m.Middleware())
	}
	if cfg.Tracing.Enabled {
		s.router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}

	s.registerRoutes()
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: s.router,
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
	if s.cfg.Metrics.Enabled {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	ws := s.router.Group("/ws")
	if s.jwtService != nil {
		api.Use(s.authMiddleware())
		ws.Use(s.authMiddleware())
	}

	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions", s.handleListSessions)
	api.GET("/sessions/:id", s.handleGetSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	api.POST("/sessions/:id/operations", s.handleSubmitOperation)
	api.GET("/sessions/:id/events", s.handleSSE)
	ws.GET("/sessions/:id", s.handleWebSocket)
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.logger.Info("starting http server", zap.Int("port", s.cfg.Server.Port))
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start server", zap.Error(err))
		}
	}()
}

// Shutdown releases all streaming connections and stops the listener.
// Call it after the lifecycle coordinator has broadcast its shutdown
// warning, so streaming subscribers can still observe it on the way out.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	close(s.shutdownCh)
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
