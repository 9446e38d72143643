// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tickfeed/tickfeed/internal/auth"
	"github.com/tickfeed/tickfeed/internal/services/session"
	"github.com/tickfeed/tickfeed/internal/services/twofactor"
)

// TwoFactorHandlers contains handlers for enrollment and verification.
type TwoFactorHandlers struct {
	svc      *twofactor.Service
	sessions *session.Manager
}

// NewTwoFactor creates a new TwoFactorHandlers instance.
func NewTwoFactor(svc *twofactor.Service, sessions *session.Manager) *TwoFactorHandlers {
	return &TwoFactorHandlers{svc: svc, sessions: sessions}
}

// Setup handles POST /auth/2fa/setup: starts enrollment and returns the
// secret, provisioning URL and backup codes for one-time display. Nothing
// is persisted until Enable confirms.
func (h *TwoFactorHandlers) Setup(c echo.Context) error {
	user := auth.GetUser(c.Request().Context())

	enrollment, err := h.svc.BeginEnrollment(user.ID, user.Email)
	if err != nil {
		slog.Error("starting 2fa enrollment", "user_id", user.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to start enrollment")
	}
	return c.JSON(http.StatusOK, enrollment)
}

// VerifyRequest carries either a 6-digit TOTP code or a backup code.
type VerifyRequest struct {
	Token      string `json:"token"`
	BackupCode string `json:"backup_code"`
}

// Enable handles POST /auth/2fa/enable: confirms a pending enrollment with a
// currently valid code. A confirmed enrollment counts as verified for this
// session.
func (h *TwoFactorHandlers) Enable(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.GetUser(ctx)

	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" {
		return errorJSON(c, http.StatusBadRequest, "token is required")
	}

	err := h.svc.ConfirmEnrollment(ctx, user.ID, req.Token)
	switch {
	case errors.Is(err, twofactor.ErrNoPendingEnrollment):
		return errorJSON(c, http.StatusBadRequest, "no enrollment in progress")
	case errors.Is(err, twofactor.ErrInvalidCode):
		return errorJSON(c, http.StatusUnauthorized, "invalid code")
	case err != nil:
		slog.Error("confirming 2fa enrollment", "user_id", user.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to enable two-factor authentication")
	}

	if sess := auth.GetSession(ctx); sess != nil {
		h.sessions.MarkVerified(sess)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// Verify handles POST /auth/2fa/verify: accepts either {token} or
// {backup_code}. Success caches the verification for the session; no
// re-challenge until sign-out.
func (h *TwoFactorHandlers) Verify(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.GetUser(ctx)

	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	var err error
	switch {
	case req.Token != "":
		err = h.svc.VerifyCode(ctx, user.ID, req.Token)
	case req.BackupCode != "":
		err = h.svc.VerifyBackupCode(ctx, user.ID, req.BackupCode)
	default:
		return errorJSON(c, http.StatusBadRequest, "token or backup_code is required")
	}

	switch {
	case errors.Is(err, twofactor.ErrTooManyAttempts):
		return errorJSON(c, http.StatusTooManyRequests, "too many failed attempts, try again later")
	case errors.Is(err, twofactor.ErrNotEnrolled):
		return errorJSON(c, http.StatusBadRequest, "two-factor authentication is not enabled")
	case errors.Is(err, twofactor.ErrInvalidCode):
		return errorJSON(c, http.StatusUnauthorized, "invalid code")
	case err != nil:
		slog.Error("verifying 2fa code", "user_id", user.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "verification failed")
	}

	if sess := auth.GetSession(ctx); sess != nil {
		h.sessions.MarkVerified(sess)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// Disable handles POST /auth/2fa/disable: deletes the credential and backup
// codes wholesale after a valid code confirms possession.
func (h *TwoFactorHandlers) Disable(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.GetUser(ctx)

	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" {
		return errorJSON(c, http.StatusBadRequest, "token is required")
	}

	err := h.svc.Disable(ctx, user.ID, req.Token)
	switch {
	case errors.Is(err, twofactor.ErrTooManyAttempts):
		return errorJSON(c, http.StatusTooManyRequests, "too many failed attempts, try again later")
	case errors.Is(err, twofactor.ErrNotEnrolled):
		return errorJSON(c, http.StatusBadRequest, "two-factor authentication is not enabled")
	case errors.Is(err, twofactor.ErrInvalidCode):
		return errorJSON(c, http.StatusUnauthorized, "invalid code")
	case err != nil:
		slog.Error("disabling 2fa", "user_id", user.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to disable two-factor authentication")
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// RegenerateBackupCodes handles POST /auth/2fa/backup-codes: replaces the
// stored set wholesale and returns the new plaintexts once.
func (h *TwoFactorHandlers) RegenerateBackupCodes(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.GetUser(ctx)

	codes, err := h.svc.RegenerateBackupCodes(ctx, user.ID)
	switch {
	case errors.Is(err, twofactor.ErrNotEnrolled):
		return errorJSON(c, http.StatusBadRequest, "two-factor authentication is not enabled")
	case err != nil:
		slog.Error("regenerating backup codes", "user_id", user.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to regenerate backup codes")
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "backup_codes": codes})
}

// Status handles GET /auth/2fa/status.
func (h *TwoFactorHandlers) Status(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.GetUser(ctx)

	status, err := h.svc.GetStatus(ctx, user.ID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "database error")
	}
	return c.JSON(http.StatusOK, status)
}
