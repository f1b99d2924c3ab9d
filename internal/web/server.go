// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

// Package web exposes the auth core over HTTP. Handlers translate between
// JSON and the auth service and own the session cookie; every decision about
// credentials lives below this layer.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/driftboard/driftboard/internal/auth"
	"github.com/driftboard/driftboard/internal/config"
	"github.com/driftboard/driftboard/internal/observability"
)

// SessionCookieName is the cookie carrying the session identifier.
const SessionCookieName = "db_session"

// Server is the HTTP API server.
type Server struct {
	cfg        config.ServerConfig
	svc        *auth.Service
	metrics    *observability.Metrics
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer creates the API server and its routes. metrics may be nil in
// tests.
func NewServer(cfg config.ServerConfig, svc *auth.Service, metrics *observability.Metrics, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: metrics,
		logger:  logger,
		engine:  engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(s.requestLog())

	api := s.engine.Group("/api/auth")
	{
		api.POST("/signup", s.handleSignup)
		api.POST("/login", s.handleLogin)
		api.POST("/external", s.handleLoginExternal)
		api.POST("/logout", s.handleLogout)
		api.GET("/me", s.handleMe)
		api.POST("/verify-email", s.handleVerifyEmail)
		api.POST("/resend-verification", s.handleResendVerification)
		api.POST("/forgot-password", s.handleForgotPassword)
		api.POST("/reset-password", s.handleResetPassword)
	}
}

// Handler returns the router for serving or for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving on the configured address. It returns an error channel
// that receives any error from the HTTP server after it starts.
func (s *Server) Start() <-chan error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.Info("api server started", "addr", s.cfg.Addr)
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown api server").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// requestLog logs each request with latency and status.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", elapsed.Milliseconds(),
		)

		if s.metrics != nil {
			s.metrics.HTTPRequestDuration.
				WithLabelValues(c.FullPath(), statusClass(c.Writer.Status())).
				Observe(elapsed.Seconds())
		}
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func (s *Server) countOp(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.AuthOperationsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

func (s *Server) countSession(trigger string) {
	if s.metrics != nil {
		s.metrics.SessionsIssuedTotal.WithLabelValues(trigger).Inc()
	}
}

// setSessionCookie writes the session cookie with the session's own expiry.
func (s *Server) setSessionCookie(c *gin.Context, session *auth.Session) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie.
func (s *Server) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// currentSession validates the request's session cookie. A missing or invalid
// cookie yields (nil, nil); the cookie is cleared when it named a dead
// session.
func (s *Server) currentSession(c *gin.Context) (*auth.Validation, error) {
	cookie, err := c.Cookie(SessionCookieName)
	if err != nil {
		return nil, nil
	}

	v, err := s.svc.ValidateSession(c.Request.Context(), cookie)
	if err != nil {
		return nil, err
	}
	if v == nil {
		s.clearSessionCookie(c)
		return nil, nil
	}
	// Rewrite the cookie only when the expiry moved; every response would
	// otherwise carry a Set-Cookie.
	if v.Fresh {
		s.setSessionCookie(c, v.Session)
	}
	return v, nil
}
