// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository wraps all database access behind a single type.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/vinovest/sqlx"
)

// Sentinel errors returned by repository methods.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrLinkUsed is returned when a feedback link was already redeemed.
	ErrLinkUsed = errors.New("feedback link already used")
	// ErrLinkExpired is returned when a feedback link's validity window has passed.
	ErrLinkExpired = errors.New("feedback link expired")
	// ErrDuplicateToken is returned when inserting a link whose token already exists.
	ErrDuplicateToken = errors.New("duplicate feedback link token")
)

// Repository wraps sqlx for database operations.
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying sqlx DB for direct access.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// wrapError converts driver errors to repository errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
