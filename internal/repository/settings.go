// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strconv"
)

// Known settings keys. Anything else in the settings table is ignored on
// load and reported by UnknownSettings.
const (
	SettingNotifyEmailEnabled = "notify.email_enabled"
	SettingNotifyWebhookURL   = "notify.webhook_url"
	SettingNotifySubject      = "notify.subject"
)

// NotificationSettings is the typed view of the string-keyed settings rows.
// Missing keys fall back to explicit defaults rather than zero values.
type NotificationSettings struct { //nolint:govet // fieldalignment not critical
	EmailEnabled bool
	WebhookURL   string
	Subject      string
}

// DefaultNotificationSettings returns the values used when the settings
// table has no row for a key.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		EmailEnabled: true,
		WebhookURL:   "",
		Subject:      "New customer feedback",
	}
}

// GetSetting retrieves a raw setting value.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if err != nil {
		return "", wrapError(err)
	}
	return value, nil
}

// SaveSetting upserts a raw setting value.
func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	return err
}

// LoadNotificationSettings deserializes the settings rows into the typed
// struct, applying defaults for missing keys.
func (r *Repository) LoadNotificationSettings(ctx context.Context) (NotificationSettings, error) {
	settings := DefaultNotificationSettings()

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, err
		}
		switch key {
		case SettingNotifyEmailEnabled:
			if enabled, err := strconv.ParseBool(value); err == nil {
				settings.EmailEnabled = enabled
			}
		case SettingNotifyWebhookURL:
			settings.WebhookURL = value
		case SettingNotifySubject:
			if value != "" {
				settings.Subject = value
			}
		}
	}
	return settings, rows.Err()
}

// SaveNotificationSettings persists the typed struct back to settings rows.
func (r *Repository) SaveNotificationSettings(ctx context.Context, settings NotificationSettings) error {
	if err := r.SaveSetting(ctx, SettingNotifyEmailEnabled, strconv.FormatBool(settings.EmailEnabled)); err != nil {
		return err
	}
	if err := r.SaveSetting(ctx, SettingNotifyWebhookURL, settings.WebhookURL); err != nil {
		return err
	}
	return r.SaveSetting(ctx, SettingNotifySubject, settings.Subject)
}

// UnknownSettings lists keys present in the settings table that the
// application does not recognize.
func (r *Repository) UnknownSettings(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM settings`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var unknown []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		switch key {
		case SettingNotifyEmailEnabled, SettingNotifyWebhookURL, SettingNotifySubject:
		default:
			unknown = append(unknown, key)
		}
	}
	return unknown, rows.Err()
}
