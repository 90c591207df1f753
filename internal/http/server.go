// Package http provides the autopatchd HTTP API.
//
// Intake systems create tickets and forward customer replies; operators list
// and decide approval requests. Every /api/v1 route requires the configured
// bearer token when one is set.
package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/logging"
	"github.com/fyrsmithlabs/autopatchd/internal/remote"
	"github.com/fyrsmithlabs/autopatchd/internal/router"
	"github.com/fyrsmithlabs/autopatchd/internal/secrets"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// Dispatcher routes tickets.
type Dispatcher interface {
	Dispatch(ctx context.Context, ticketID string) (router.Outcome, error)
	HandleCustomerReply(ctx context.Context, ticketID string) (router.Outcome, error)
	Detect(ctx context.Context, t *ticket.Ticket) *autopatch.Candidate
}

// PendingLister lists open approval requests.
type PendingLister interface {
	Pending() []approval.Request
}

// HealthCheck reports a component failure. Nil means healthy.
type HealthCheck func(ctx context.Context) error

// Deps are the components behind the API. Store and Router are required.
type Deps struct {
	Store     ticket.Store
	Router    Dispatcher
	Pending   PendingLister
	Decider   approval.Decider
	Whitelist *remote.Whitelist
	Scrubber  secrets.Scrubber
	Checks    map[string]HealthCheck
}

// Config holds HTTP server configuration.
type Config struct {
	Host     string
	Port     int
	APIToken string
}

// Server provides HTTP endpoints for autopatchd.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	log    *logging.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Store == nil || deps.Router == nil {
		return nil, fmt.Errorf("store and router are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 9191}
	}
	if deps.Scrubber == nil {
		deps.Scrubber = &secrets.NoopScrubber{}
	}
	if deps.Whitelist == nil {
		deps.Whitelist = remote.DefaultWhitelist()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		deps:   deps,
		log:    logging.Wrap(logger.Named("http")),
		config: cfg,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

// requestLogger tags the request context for downstream logs and records
// one line per request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		if id := c.Param("id"); id != "" {
			ctx = logging.WithTicketID(ctx, id)
		}
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.log.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("route", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	if s.config.APIToken != "" {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIToken)) == 1, nil
			},
			ErrorHandler: func(error, echo.Context) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			},
		}))
	}

	v1.POST("/tickets", s.handleCreateTicket)
	v1.GET("/tickets/:id", s.handleGetTicket)
	v1.GET("/tickets/:id/messages", s.handleMessages)
	v1.POST("/tickets/:id/dispatch", s.handleDispatch)
	v1.POST("/tickets/:id/replies", s.handleReply)
	v1.POST("/tickets/:id/match", s.handleMatch)

	v1.GET("/approvals", s.handleListApprovals)
	v1.POST("/approvals/:id/decision", s.handleDecide)

	v1.POST("/whitelist/check", s.handleWhitelistCheck)
	v1.POST("/scrub", s.handleScrub)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if len(s.deps.Checks) > 0 {
		resp.Services = make(map[string]string, len(s.deps.Checks))
		for name, check := range s.deps.Checks {
			if err := check(c.Request().Context()); err != nil {
				resp.Services[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Services[name] = "ok"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Start serves until Shutdown. Returns http.ErrServerClosed after a clean
// shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.log.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted or exercised with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
