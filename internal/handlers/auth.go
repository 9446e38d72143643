// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/tickfeed/tickfeed/internal/auth"
	"github.com/tickfeed/tickfeed/internal/repository"
	"github.com/tickfeed/tickfeed/internal/services/session"
)

// AuthHandlers contains handlers for sign-in and sign-out.
type AuthHandlers struct {
	repo     *repository.Repository
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(repo *repository.Repository, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{repo: repo, sessions: sessions}
}

// LoginRequest is the sign-in body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies the password and issues a session cookie. Two-factor
// verification, where required, happens afterwards through the gate.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, http.StatusBadRequest, "email and password are required")
	}

	user, err := h.repo.GetUserByEmail(c.Request().Context(), req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "database error")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return errorJSON(c, http.StatusUnauthorized, "invalid credentials")
	}

	if _, err := h.sessions.Issue(c.Response(), user.ID); err != nil {
		slog.Error("issuing session", "user_id", user.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to start session")
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "user": user})
}

// Logout destroys the session. The two-factor verified marker is cleared
// with it; a later sign-in re-challenges.
func (h *AuthHandlers) Logout(c echo.Context) error {
	sess := auth.GetSession(c.Request().Context())
	h.sessions.Clear(c.Response(), sess)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
