// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tickfeed/tickfeed/internal/models"
)

// GetTwoFactorCredential retrieves the 2FA credential for a user.
func (r *Repository) GetTwoFactorCredential(ctx context.Context, userID int64) (*models.TwoFactorCredential, error) {
	var cred models.TwoFactorCredential
	err := r.db.GetContext(ctx, &cred, `SELECT * FROM two_factor_credentials WHERE user_id = ?`, userID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &cred, nil
}

// HasEnabledTwoFactor reports whether the user has a confirmed credential.
func (r *Repository) HasEnabledTwoFactor(ctx context.Context, userID int64) (bool, error) {
	var enabled bool
	err := r.db.GetContext(ctx, &enabled,
		`SELECT EXISTS(SELECT 1 FROM two_factor_credentials WHERE user_id = ? AND is_enabled = 1)`, userID)
	return enabled, err
}

// EnableTwoFactor persists the credential and its backup codes in one
// transaction, replacing any previous enrollment for the user.
func (r *Repository) EnableTwoFactor(ctx context.Context, userID int64, secret string, codeHashes []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM two_factor_credentials WHERE user_id = ?`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO two_factor_credentials (user_id, secret, is_enabled) VALUES (?, ?, 1)`,
		userID, secret); err != nil {
		return err
	}
	for _, hash := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, code_hash) VALUES (?, ?)`, userID, hash); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DisableTwoFactor deletes the credential and all backup codes wholesale.
func (r *Repository) DisableTwoFactor(ctx context.Context, userID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM two_factor_credentials WHERE user_id = ?`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return err
	}

	return tx.Commit()
}

// ReplaceBackupCodes swaps the stored backup code set wholesale.
func (r *Repository) ReplaceBackupCodes(ctx context.Context, userID int64, codeHashes []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, hash := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, code_hash) VALUES (?, ?)`, userID, hash); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetUnusedBackupCodes retrieves unused backup codes for a user.
func (r *Repository) GetUnusedBackupCodes(ctx context.Context, userID int64) ([]models.BackupCode, error) {
	var codes []models.BackupCode
	err := r.db.SelectContext(ctx, &codes,
		`SELECT * FROM backup_codes WHERE user_id = ? AND used_at IS NULL`, userID)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// CountUnusedBackupCodes returns the count of unused backup codes.
func (r *Repository) CountUnusedBackupCodes(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used_at IS NULL`, userID)
	return count, err
}

// ConsumeBackupCode validates a plaintext backup code against the user's
// unused set and burns it. The guarded UPDATE makes consumption single-use
// even under concurrent attempts with the same code: only the first call
// matches the NULL used_at.
func (r *Repository) ConsumeBackupCode(ctx context.Context, userID int64, code string) (bool, error) {
	codes, err := r.GetUnusedBackupCodes(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, c := range codes {
		if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(code)) != nil {
			continue
		}
		res, err := r.db.ExecContext(ctx,
			`UPDATE backup_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`,
			time.Now().UTC(), c.ID)
		if err != nil {
			return false, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		return affected == 1, nil
	}

	return false, nil
}
