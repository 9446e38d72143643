// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"github.com/tickfeed/tickfeed/internal/models"
)

// CreateNotificationRecipient adds an address to the notification fan-out.
func (r *Repository) CreateNotificationRecipient(ctx context.Context, rec *models.NotificationRecipient) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_recipients (email, name, is_enabled) VALUES (?, ?, ?)`,
		rec.Email, rec.Name, rec.IsEnabled)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// ListNotificationRecipients returns all recipients.
func (r *Repository) ListNotificationRecipients(ctx context.Context) ([]models.NotificationRecipient, error) {
	var recipients []models.NotificationRecipient
	err := r.db.SelectContext(ctx, &recipients,
		`SELECT * FROM notification_recipients ORDER BY email`)
	if err != nil {
		return nil, err
	}
	return recipients, nil
}

// ListEnabledNotificationRecipients returns recipients with delivery enabled.
func (r *Repository) ListEnabledNotificationRecipients(ctx context.Context) ([]models.NotificationRecipient, error) {
	var recipients []models.NotificationRecipient
	err := r.db.SelectContext(ctx, &recipients,
		`SELECT * FROM notification_recipients WHERE is_enabled = 1 ORDER BY email`)
	if err != nil {
		return nil, err
	}
	return recipients, nil
}

// SetNotificationRecipientEnabled toggles delivery for a recipient.
func (r *Repository) SetNotificationRecipientEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_recipients SET is_enabled = ? WHERE id = ?`, enabled, id)
	return err
}

// DeleteNotificationRecipient removes a recipient.
func (r *Repository) DeleteNotificationRecipient(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notification_recipients WHERE id = ?`, id)
	return err
}
