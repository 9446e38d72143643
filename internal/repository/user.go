// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"github.com/tickfeed/tickfeed/internal/models"
)

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// CreateUser creates a new user.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, is_admin) VALUES (?, ?, ?)`,
		user.Email, user.PasswordHash, user.IsAdmin)
	if err != nil {
		return err
	}
	user.ID, err = res.LastInsertId()
	return err
}

// ListUsers returns all users ordered by creation date (newest first).
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, err
	}
	return users, nil
}

// SetUserAdmin sets or removes admin status for a user.
func (r *Repository) SetUserAdmin(ctx context.Context, id int64, isAdmin bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_admin = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, isAdmin, id)
	return err
}

// UpdateUserPassword updates a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, passwordHash, id)
	return err
}

// CountAdmins returns the number of admin users.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE is_admin = 1`)
	return count, err
}
