// Package api provides the thin HTTP/WebSocket binding around
// pkg/pipeline.Driver. Spec §1 scopes "HTTP/SSE transport framing" out of
// the orchestrator core, but the teacher repo carries exactly this kind
// of binding as ambient infrastructure around its own core, so it's kept
// here the same way: pkg/pipeline never imports this package, only the
// reverse.
//
// Grounded on pkg/api/server.go's Server struct (echo instance + service
// pointers, NewServer registering routes once at construction,
// Start/StartWithListener/Shutdown) and pkg/api/errors.go's error-mapping
// pattern.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/albarami/qnwis/pkg/database"
	"github.com/albarami/qnwis/pkg/events"
	"github.com/albarami/qnwis/pkg/pipeline"
	"github.com/albarami/qnwis/pkg/version"
)

// Server is the HTTP API server fronting one pipeline.Driver.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	driver     *pipeline.Driver
	hub        *events.Hub
	dbClient   *database.Client
}

// NewServer builds a Server and registers every route. dbClient may be
// nil (health reports "healthy" without a database check in that case).
func NewServer(driver *pipeline.Driver, hub *events.Hub, dbClient *database.Client) *Server {
	e := echo.New()
	e.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s := &Server{echo: e, driver: driver, hub: hub, dbClient: dbClient}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.submitRunHandler)
	v1.POST("/runs/:id/cancel", s.cancelRunHandler)
	v1.GET("/runs/:id/events", s.wsHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// e.g. one bound to a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status   string                  `json:"status"`
	Version  string                  `json:"version"`
	Database *database.HealthStatus  `json:"database,omitempty"`
}

func (s *Server) healthHandler(c *echo.Context) error {
	resp := &HealthResponse{Status: "healthy", Version: version.Full()}

	if s.dbClient != nil {
		reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
