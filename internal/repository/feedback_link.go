// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vinovest/sqlx"

	"github.com/tickfeed/tickfeed/internal/models"
)

// CreateFeedbackLink inserts a new feedback link. The token column carries a
// unique index; a collision surfaces as ErrDuplicateToken so the caller can
// regenerate and retry. Token generation plus insertion therefore never
// issues the same token twice, regardless of concurrent creators.
func (r *Repository) CreateFeedbackLink(ctx context.Context, link *models.FeedbackLink) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO feedback_links (token, ticket_number, technician, ticket_title, customer_email, customer_name, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.Token, link.TicketNumber, link.Technician, link.TicketTitle,
		link.CustomerEmail, link.CustomerName, link.ExpiresAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateToken
		}
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id
	return nil
}

// GetFeedbackLinkByToken retrieves a feedback link by its token.
func (r *Repository) GetFeedbackLinkByToken(ctx context.Context, token string) (*models.FeedbackLink, error) {
	var link models.FeedbackLink
	err := r.db.GetContext(ctx, &link, `SELECT * FROM feedback_links WHERE token = ?`, token)
	if err != nil {
		return nil, wrapError(err)
	}
	return &link, nil
}

// ListFeedbackLinks returns all links ordered by creation date (newest first).
func (r *Repository) ListFeedbackLinks(ctx context.Context) ([]models.FeedbackLink, error) {
	var links []models.FeedbackLink
	err := r.db.SelectContext(ctx, &links, `SELECT * FROM feedback_links ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return links, nil
}

// RedeemFeedbackLink marks a link used and records the submission in one
// transaction. The guarded UPDATE only succeeds while the link is unused and
// unexpired, so of two racing redeem calls exactly one commits a submission;
// the loser gets ErrLinkUsed. Neither half of the transaction is observable
// without the other.
func (r *Repository) RedeemFeedbackLink(ctx context.Context, token string, feedbackType models.FeedbackType, comment string, now time.Time) (*models.FeedbackSubmission, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE feedback_links SET is_used = 1, used_at = ? WHERE token = ? AND is_used = 0 AND expires_at > ?`,
		now.UTC(), token, now.UTC())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, redeemFailureReason(ctx, tx, token, now)
	}

	var linkID int64
	if err := tx.GetContext(ctx, &linkID, `SELECT id FROM feedback_links WHERE token = ?`, token); err != nil {
		return nil, wrapError(err)
	}

	submission := &models.FeedbackSubmission{
		FeedbackLinkID: linkID,
		FeedbackType:   feedbackType,
		Comment:        comment,
		SubmittedAt:    now.UTC(),
	}
	insert, err := tx.ExecContext(ctx,
		`INSERT INTO feedback_submissions (feedback_link_id, feedback_type, comment, submitted_at) VALUES (?, ?, ?, ?)`,
		submission.FeedbackLinkID, submission.FeedbackType, submission.Comment, submission.SubmittedAt)
	if err != nil {
		return nil, err
	}
	submission.ID, err = insert.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing redemption: %w", err)
	}
	return submission, nil
}

// redeemFailureReason re-reads the link to tell the caller why the guarded
// update matched nothing. The read stays on the open transaction so it sees
// the same database state the update did. Used-before-expired ordering
// matches the resolution priority: a used link reports "used" even if it has
// also expired since.
func redeemFailureReason(ctx context.Context, tx *sqlx.Tx, token string, now time.Time) error {
	var link models.FeedbackLink
	if err := tx.GetContext(ctx, &link, `SELECT * FROM feedback_links WHERE token = ?`, token); err != nil {
		return wrapError(err)
	}
	if link.IsUsed {
		return ErrLinkUsed
	}
	if link.Expired(now) {
		return ErrLinkExpired
	}
	// The link became redeemable between the update and this read. Callers
	// treat any non-nil error as a failed redemption and may retry.
	return fmt.Errorf("feedback link %q not redeemed", token)
}

// DeleteExpiredLinks removes expired, never-redeemed links. Run by an
// operator cron; the application itself keeps redeemed links for audit.
func (r *Repository) DeleteExpiredLinks(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM feedback_links WHERE is_used = 0 AND expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
