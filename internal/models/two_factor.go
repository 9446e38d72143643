// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// TwoFactorCredential binds a TOTP secret to a user. At most one per user.
// The secret is never returned to clients after the initial enrollment
// display.
type TwoFactorCredential struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Secret    string    `db:"secret" json:"-"`
	IsEnabled bool      `db:"is_enabled" json:"is_enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BackupCode stores a hashed single-use recovery code for a user's 2FA.
type BackupCode struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	CodeHash  string     `db:"code_hash" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
}
