// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"github.com/tickfeed/tickfeed/internal/ctxkeys"
	"github.com/tickfeed/tickfeed/internal/models"
	"github.com/tickfeed/tickfeed/internal/services/session"
)

// SetUser stores the authenticated user in the context.
func SetUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, ctxkeys.User{}, user)
}

// GetUser returns the authenticated user from the context, or nil if not authenticated.
func GetUser(ctx context.Context) *models.User {
	if user, ok := ctx.Value(ctxkeys.User{}).(*models.User); ok {
		return user
	}
	return nil
}

// IsAuthenticated returns true if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return GetUser(ctx) != nil
}

// SetSession stores the decoded browser session in the context.
func SetSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, ctxkeys.Session{}, sess)
}

// GetSession returns the decoded browser session, or nil.
func GetSession(ctx context.Context) *session.Session {
	if sess, ok := ctx.Value(ctxkeys.Session{}).(*session.Session); ok {
		return sess
	}
	return nil
}
