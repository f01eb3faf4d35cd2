// Package api serves logwatch's HTTP interface: monitor status, the alert
// history journal, a websocket stream of alert events, and Prometheus
// metrics.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tphakala/logwatch/internal/datastore/repository"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/monitor"
	"github.com/tphakala/logwatch/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// StatusProvider returns the monitor's latest snapshot.
type StatusProvider interface {
	Status() monitor.Status
}

// Dependencies are the components the API reads from. History and
// Metrics may be nil, which disables their endpoints.
type Dependencies struct {
	Status  StatusProvider
	History repository.AlertHistoryRepository
	Metrics *observability.Metrics
}

// Server is the echo application and the alert stream hub it serves.
type Server struct {
	echo       *echo.Echo
	controller *Controller
	hub        *Hub
	log        logger.Logger
}

// NewServer creates the server and registers all routes. Subscribe
// Hub().Broadcast to the alert bus to feed the stream endpoint.
func NewServer(deps Dependencies, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	hub := NewHub(deps.Metrics, log)
	s := &Server{
		echo: e,
		controller: &Controller{
			status:  deps.Status,
			history: deps.History,
			log:     log,
		},
		hub: hub,
		log: log,
	}
	s.registerRoutes(deps.Metrics)
	return s
}

func (s *Server) registerRoutes(m *observability.Metrics) {
	s.echo.GET("/healthz", s.controller.Health)
	if m != nil {
		s.echo.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.controller.GetStatus)
	v1.GET("/alerts/history", s.controller.ListAlertHistory)
	v1.GET("/alerts/history/:event_id", s.controller.GetAlertHistory)
	v1.GET("/stream", s.hub.ServeWS)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Hub returns the alert stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then closes stream clients
// and shuts the server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	s.log.Info("http server listening", logger.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// hijacked websocket connections are not tracked by Shutdown
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}
