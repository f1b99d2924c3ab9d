// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/driftboard/driftboard/internal/auth"
	"github.com/driftboard/driftboard/pkg/errutil"
)

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type externalLoginRequest struct {
	ProviderID    string `json:"provider_id" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	EmailVerified bool   `json:"email_verified"`
}

type verifyEmailRequest struct {
	Code string `json:"code" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:            u.ID.String(),
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func (s *Server) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.svc.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.countOp("signup", "failure")
		s.writeError(c, err)
		return
	}

	s.countOp("signup", "success")
	s.countSession("signup")
	s.setSessionCookie(c, result.Session)
	c.JSON(http.StatusCreated, gin.H{"user": toUserResponse(result.User)})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.countOp("login", "failure")
		s.writeError(c, err)
		return
	}

	s.countOp("login", "success")
	s.countSession("login")
	s.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(result.User)})
}

func (s *Server) handleLoginExternal(c *gin.Context) {
	var req externalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.svc.LoginExternal(c.Request.Context(), req.ProviderID, req.Email, req.EmailVerified)
	if err != nil {
		s.countOp("login_external", "failure")
		s.writeError(c, err)
		return
	}

	s.countOp("login_external", "success")
	s.countSession("login")
	s.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(result.User)})
}

func (s *Server) handleLogout(c *gin.Context) {
	cookie, err := c.Cookie(SessionCookieName)
	if err == nil && cookie != "" {
		if err := s.svc.Logout(c.Request.Context(), cookie); err != nil {
			s.writeError(c, err)
			return
		}
	}
	s.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	v, err := s.currentSession(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(v.User)})
}

func (s *Server) handleVerifyEmail(c *gin.Context) {
	v, err := s.currentSession(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.svc.RedeemVerification(c.Request.Context(), v.User.ID, req.Code)
	if err != nil {
		s.countOp("verify_email", "failure")
		s.writeError(c, err)
		return
	}

	s.countOp("verify_email", "success")
	s.countSession("verification")
	s.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(result.User)})
}

func (s *Server) handleResendVerification(c *gin.Context) {
	v, err := s.currentSession(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	if err := s.svc.IssueVerification(c.Request.Context(), v.User.ID); err != nil {
		s.countOp("resend_verification", "failure")
		s.writeError(c, err)
		return
	}

	s.countOp("resend_verification", "success")
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (s *Server) handleForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		s.countOp("forgot_password", "failure")
		s.writeError(c, err)
		return
	}

	s.countOp("forgot_password", "success")
	// The same response whether or not the address exists.
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.svc.ResetPassword(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		s.countOp("reset_password", "failure")
		s.writeError(c, err)
		return
	}

	s.countOp("reset_password", "success")
	s.countSession("password_reset")
	s.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(result.User)})
}

// sentinelStatus maps each expected failure to its HTTP status. The response
// body carries the sentinel's own message, which is already written for users
// and already generic where account existence is involved.
var sentinelStatus = []struct {
	sentinel error
	status   int
}{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrNoSession, http.StatusUnauthorized},
	{auth.ErrEmailTaken, http.StatusConflict},
	{auth.ErrAlreadyVerified, http.StatusConflict},
	{auth.ErrPasswordLength, http.StatusBadRequest},
	{auth.ErrCodeInvalid, http.StatusBadRequest},
	{auth.ErrCodeExpired, http.StatusBadRequest},
	{auth.ErrEmailMismatch, http.StatusBadRequest},
	{auth.ErrTokenInvalid, http.StatusBadRequest},
	{auth.ErrTokenExpired, http.StatusBadRequest},
}

// writeError maps service errors to HTTP responses. Expected failures answer
// with their sentinel's message; anything else is a 500 with a generic body so
// internals never leak.
func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrResendThrottled) {
		wait, _ := auth.RetryAfter(err)
		secs := int64(wait / time.Second)
		c.Header("Retry-After", strconv.FormatInt(secs, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       auth.ErrResendThrottled.Error(),
			"retry_after": secs,
		})
		return
	}

	for _, m := range sentinelStatus {
		if errors.Is(err, m.sentinel) {
			c.JSON(m.status, gin.H{"error": m.sentinel.Error()})
			return
		}
	}

	errutil.LogError(s.logger, "request failed", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
