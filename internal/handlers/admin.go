// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/tickfeed/tickfeed/internal/models"
	"github.com/tickfeed/tickfeed/internal/repository"
)

// AdminHandlers contains user/role and notification recipient management.
type AdminHandlers struct {
	repo *repository.Repository
}

// NewAdmin creates a new AdminHandlers instance.
func NewAdmin(repo *repository.Repository) *AdminHandlers {
	return &AdminHandlers{repo: repo}
}

// ListUsers handles GET /admin/users.
func (h *AdminHandlers) ListUsers(c echo.Context) error {
	users, err := h.repo.ListUsers(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "database error")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": users})
}

// CreateUserRequest is the body for creating a user.
type CreateUserRequest struct { //nolint:govet // fieldalignment not critical
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// CreateUser handles POST /admin/users.
func (h *AdminHandlers) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return errorJSON(c, http.StatusBadRequest, "a valid email is required")
	}
	if len(req.Password) < 8 {
		return errorJSON(c, http.StatusBadRequest, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to hash password")
	}

	user := &models.User{Email: req.Email, PasswordHash: string(hash), IsAdmin: req.IsAdmin}
	if err := h.repo.CreateUser(c.Request().Context(), user); err != nil {
		slog.Error("creating user", "email", req.Email, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to create user")
	}
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "user": user})
}

// SetRoleRequest toggles a user's admin role.
type SetRoleRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// SetUserRole handles PUT /admin/users/:id/role. The last admin cannot be
// demoted.
func (h *AdminHandlers) SetUserRole(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}

	var req SetRoleRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	if !req.IsAdmin {
		admins, err := h.repo.CountAdmins(ctx)
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, "database error")
		}
		user, err := h.repo.GetUserByID(ctx, userID)
		if err != nil {
			return errorJSON(c, http.StatusNotFound, "user not found")
		}
		if user.IsAdmin && admins <= 1 {
			return errorJSON(c, http.StatusConflict, "cannot demote the last admin")
		}
	}

	if err := h.repo.SetUserAdmin(ctx, userID, req.IsAdmin); err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to update role")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// ListRecipients handles GET /admin/recipients.
func (h *AdminHandlers) ListRecipients(c echo.Context) error {
	recipients, err := h.repo.ListNotificationRecipients(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "database error")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": recipients})
}

// AddRecipientRequest is the body for adding a notification recipient.
type AddRecipientRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AddRecipient handles POST /admin/recipients.
func (h *AdminHandlers) AddRecipient(c echo.Context) error {
	var req AddRecipientRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return errorJSON(c, http.StatusBadRequest, "a valid email is required")
	}

	recipient := &models.NotificationRecipient{Email: req.Email, Name: req.Name, IsEnabled: true}
	if err := h.repo.CreateNotificationRecipient(c.Request().Context(), recipient); err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to add recipient")
	}
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "data": recipient})
}

// DeleteRecipient handles DELETE /admin/recipients/:id.
func (h *AdminHandlers) DeleteRecipient(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid recipient id")
	}
	if err := h.repo.DeleteNotificationRecipient(c.Request().Context(), id); err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to delete recipient")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// NotificationSettings handles GET /admin/settings/notifications.
func (h *AdminHandlers) NotificationSettings(c echo.Context) error {
	settings, err := h.repo.LoadNotificationSettings(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "database error")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"email_enabled": settings.EmailEnabled,
		"webhook_url":   settings.WebhookURL,
		"subject":       settings.Subject,
	})
}

// UpdateNotificationSettingsRequest is the body for updating settings.
type UpdateNotificationSettingsRequest struct { //nolint:govet // fieldalignment not critical
	EmailEnabled bool   `json:"email_enabled"`
	WebhookURL   string `json:"webhook_url"`
	Subject      string `json:"subject"`
}

// UpdateNotificationSettings handles PUT /admin/settings/notifications.
func (h *AdminHandlers) UpdateNotificationSettings(c echo.Context) error {
	var req UpdateNotificationSettingsRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	settings := repository.NotificationSettings{
		EmailEnabled: req.EmailEnabled,
		WebhookURL:   strings.TrimSpace(req.WebhookURL),
		Subject:      req.Subject,
	}
	if settings.Subject == "" {
		settings.Subject = repository.DefaultNotificationSettings().Subject
	}

	if err := h.repo.SaveNotificationSettings(c.Request().Context(), settings); err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to save settings")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
