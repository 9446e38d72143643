// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware provides echo middleware for sessions, role gating and
// the two-factor gate.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tickfeed/tickfeed/internal/auth"
	"github.com/tickfeed/tickfeed/internal/gate"
	"github.com/tickfeed/tickfeed/internal/repository"
	"github.com/tickfeed/tickfeed/internal/services/session"
)

// LoadUser decodes the session cookie and loads the user into the request
// context. Requests without a valid session pass through unauthenticated.
func LoadUser(sessions *session.Manager, repo *repository.Repository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := sessions.Get(c.Request())
			if sess == nil {
				return next(c)
			}

			user, err := repo.GetUserByID(c.Request().Context(), sess.UserID)
			if err != nil {
				// Stale cookie for a deleted user; treat as signed out.
				return next(c)
			}

			ctx := auth.SetUser(c.Request().Context(), user)
			ctx = auth.SetSession(ctx, sess)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireAuth rejects unauthenticated requests.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !auth.IsAuthenticated(c.Request().Context()) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		}
		return next(c)
	}
}

// RequireAdmin rejects non-admin users.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := auth.GetUser(c.Request().Context())
		if user == nil || !user.IsAdmin {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "admin access required"})
		}
		return next(c)
	}
}

// RequireTwoFactor applies the session two-factor gate on protected routes.
// Instead of content it answers 403 with the gate action ("challenge" or
// "setup") so the client renders the matching flow.
func RequireTwoFactor(sessions *session.Manager, repo *repository.Repository, policy gate.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			user := auth.GetUser(ctx)
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			}
			sess := auth.GetSession(ctx)
			if sess == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			}

			enrolled, err := repo.HasEnabledTwoFactor(ctx, user.ID)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "database error"})
			}

			action := gate.Decide(gate.Input{
				Required:        policy.RequiredFor(user.IsAdmin),
				SessionVerified: sessions.IsVerified(sess),
				Enrolled:        enrolled,
			})
			if action != gate.ShowContent {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":  "two-factor authentication required",
					"action": action.String(),
				})
			}
			return next(c)
		}
	}
}
