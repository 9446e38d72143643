// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// NotificationRecipient receives an email whenever feedback is submitted.
type NotificationRecipient struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name,omitempty"`
	IsEnabled bool      `db:"is_enabled" json:"is_enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
