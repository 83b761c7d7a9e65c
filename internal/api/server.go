// Package api exposes the trade operations and scheduler runs over HTTP.
// Authentication happens upstream; the owner arrives in the X-Owner-ID header.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// requestValidator plugs validator into echo's c.Validate.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// Server serves the HTTP interface.
type Server struct {
	echo      *echo.Echo
	logger    *zap.Logger
	addr      string
	startTime time.Time
}

// NewServer builds the echo instance and registers every route.
func NewServer(logger *zap.Logger, port int, h *Handler) *Server {
	s := &Server{
		echo:      echo.New(),
		logger:    logger.Named("api-server"),
		addr:      fmt.Sprintf(":%d", port),
		startTime: time.Now(),
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.logger.Error("Recovered from panic", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(s.logger))

	e.GET("/health", s.healthHandler)
	e.GET("/status", s.statusHandler)

	h.RegisterRoutes(e, RequireOwner(s.logger))

	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.addr))
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.echo.Shutdown(ctx)
}

func (s *Server) statusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"start_time": s.startTime.Format(time.RFC3339),
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) healthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
