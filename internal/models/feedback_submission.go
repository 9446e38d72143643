// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"fmt"
	"time"
)

// FeedbackType is the three-state satisfaction rating.
type FeedbackType string

const (
	FeedbackBad     FeedbackType = "bad"
	FeedbackNeutral FeedbackType = "neutral"
	FeedbackHappy   FeedbackType = "happy"
)

// ParseFeedbackType validates and converts a raw rating value.
func ParseFeedbackType(s string) (FeedbackType, error) {
	switch FeedbackType(s) {
	case FeedbackBad, FeedbackNeutral, FeedbackHappy:
		return FeedbackType(s), nil
	}
	return "", fmt.Errorf("invalid feedback type %q", s)
}

// FeedbackSubmission is the rating recorded when a link is redeemed.
// Immutable after creation.
type FeedbackSubmission struct { //nolint:govet // fieldalignment: readability over optimization
	ID             int64        `db:"id" json:"id"`
	FeedbackLinkID int64        `db:"feedback_link_id" json:"feedback_link_id"`
	FeedbackType   FeedbackType `db:"feedback_type" json:"feedback_type"`
	Comment        string       `db:"comment" json:"comment,omitempty"`
	SubmittedAt    time.Time    `db:"submitted_at" json:"submitted_at"`
}
