// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/tickfeed/tickfeed/internal/database"
	"github.com/tickfeed/tickfeed/internal/models"
	"github.com/tickfeed/tickfeed/internal/repository"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates a test user in the database.
func NewTestUser(t *testing.T, repo *repository.Repository, email string, isAdmin bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("test-password"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Email: email, PasswordHash: string(hash), IsAdmin: isAdmin}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewTestLink creates a feedback link expiring at the given time.
func NewTestLink(t *testing.T, repo *repository.Repository, token string, expiresAt time.Time) *models.FeedbackLink {
	t.Helper()
	link := &models.FeedbackLink{
		Token:        token,
		TicketNumber: "T-1001",
		Technician:   "Alex",
		TicketTitle:  "Printer does not print",
		CreatedAt:    time.Now(),
		ExpiresAt:    expiresAt,
	}
	require.NoError(t, repo.CreateFeedbackLink(context.Background(), link))
	return link
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}
