// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/tickfeed/tickfeed/internal/models"
)

// GetSubmissionByLinkID retrieves the submission recorded for a link.
func (r *Repository) GetSubmissionByLinkID(ctx context.Context, linkID int64) (*models.FeedbackSubmission, error) {
	var submission models.FeedbackSubmission
	err := r.db.GetContext(ctx, &submission,
		`SELECT * FROM feedback_submissions WHERE feedback_link_id = ?`, linkID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &submission, nil
}

// ListSubmissions returns submissions newest first, capped at limit (0 = all).
func (r *Repository) ListSubmissions(ctx context.Context, limit int) ([]models.FeedbackSubmission, error) {
	query := `SELECT * FROM feedback_submissions ORDER BY submitted_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var submissions []models.FeedbackSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, err
	}
	return submissions, nil
}

// CountSubmissions returns the number of recorded submissions.
func (r *Repository) CountSubmissions(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM feedback_submissions`)
	return count, err
}

// FeedbackStats aggregates submissions for the dashboard.
type FeedbackStats struct { //nolint:govet // fieldalignment: readability over optimization
	LinksCreated int64 `json:"links_created"`
	Submissions  int64 `json:"submissions"`
	Bad          int64 `json:"bad"`
	Neutral      int64 `json:"neutral"`
	Happy        int64 `json:"happy"`
}

// ResponseRate is the share of created links that were redeemed.
func (s FeedbackStats) ResponseRate() float64 {
	if s.LinksCreated == 0 {
		return 0
	}
	return float64(s.Submissions) / float64(s.LinksCreated)
}

// GetFeedbackStats aggregates links and submissions since the given time.
// A zero since covers everything.
func (r *Repository) GetFeedbackStats(ctx context.Context, since time.Time) (*FeedbackStats, error) {
	var stats FeedbackStats

	err := r.db.GetContext(ctx, &stats.LinksCreated,
		`SELECT COUNT(*) FROM feedback_links WHERE created_at >= ?`, since.UTC())
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT feedback_type, COUNT(*) FROM feedback_submissions WHERE submitted_at >= ? GROUP BY feedback_type`,
		since.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var feedbackType string
		var count int64
		if err := rows.Scan(&feedbackType, &count); err != nil {
			return nil, err
		}
		switch models.FeedbackType(feedbackType) {
		case models.FeedbackBad:
			stats.Bad = count
		case models.FeedbackNeutral:
			stats.Neutral = count
		case models.FeedbackHappy:
			stats.Happy = count
		}
		stats.Submissions += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &stats, nil
}
