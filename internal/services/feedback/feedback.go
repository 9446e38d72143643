// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package feedback implements the feedback link lifecycle: issuing
// tokenized, time-boxed links and enforcing single-use redemption.
package feedback

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tickfeed/tickfeed/internal/models"
	"github.com/tickfeed/tickfeed/internal/repository"
)

const (
	// TokenBytes is the entropy of a link token before encoding.
	TokenBytes = 32
	// createRetries bounds regeneration attempts on a token collision.
	createRetries = 3
)

// Validation errors surfaced to callers.
var (
	ErrMissingTicketNumber = errors.New("ticket_number is required")
	ErrMissingTechnician   = errors.New("technician is required")
	ErrMissingTicketTitle  = errors.New("ticket_title is required")
	ErrInvalidExpiry       = errors.New("expires_hours out of range")
)

// Notifier receives the best-effort fan-out after a successful redemption.
type Notifier interface {
	FeedbackReceived(ctx context.Context, link *models.FeedbackLink, submission *models.FeedbackSubmission)
}

// Service orchestrates link creation, resolution and redemption.
type Service struct { //nolint:govet // fieldalignment not critical
	repo           *repository.Repository
	notifier       Notifier
	defaultExpiry  time.Duration
	maxExpiryHours int
	now            func() time.Time
}

// NewService creates a feedback link service. notifier may be nil when no
// fan-out is configured.
func NewService(repo *repository.Repository, notifier Notifier, defaultExpiryHours, maxExpiryHours int) *Service {
	if defaultExpiryHours <= 0 {
		defaultExpiryHours = 72
	}
	if maxExpiryHours <= 0 {
		maxExpiryHours = 168
	}
	return &Service{
		repo:           repo,
		notifier:       notifier,
		defaultExpiry:  time.Duration(defaultExpiryHours) * time.Hour,
		maxExpiryHours: maxExpiryHours,
		now:            time.Now,
	}
}

// CreateLinkInput carries the request to issue a new link. ExpiresHours of
// zero applies the configured default.
type CreateLinkInput struct { //nolint:govet // fieldalignment not critical
	TicketNumber  string
	Technician    string
	TicketTitle   string
	CustomerEmail string
	CustomerName  string
	ExpiresHours  int
}

func (in *CreateLinkInput) validate(maxExpiryHours int) error {
	if strings.TrimSpace(in.TicketNumber) == "" {
		return ErrMissingTicketNumber
	}
	if strings.TrimSpace(in.Technician) == "" {
		return ErrMissingTechnician
	}
	if strings.TrimSpace(in.TicketTitle) == "" {
		return ErrMissingTicketTitle
	}
	if in.ExpiresHours < 0 || in.ExpiresHours > maxExpiryHours {
		return ErrInvalidExpiry
	}
	return nil
}

// CreateLink validates the input, generates a high-entropy token and inserts
// the link. A token collision (unique index on the store side) triggers
// regeneration, so concurrent creators never observe a duplicate token.
func (s *Service) CreateLink(ctx context.Context, in CreateLinkInput) (*models.FeedbackLink, error) {
	if err := in.validate(s.maxExpiryHours); err != nil {
		return nil, err
	}

	expiry := s.defaultExpiry
	if in.ExpiresHours > 0 {
		expiry = time.Duration(in.ExpiresHours) * time.Hour
	}
	now := s.now()

	link := &models.FeedbackLink{
		TicketNumber:  strings.TrimSpace(in.TicketNumber),
		Technician:    strings.TrimSpace(in.Technician),
		TicketTitle:   strings.TrimSpace(in.TicketTitle),
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CreatedAt:     now,
		ExpiresAt:     now.Add(expiry),
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return nil, err
		}
		link.Token = token

		err = s.repo.CreateFeedbackLink(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, repository.ErrDuplicateToken) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("creating feedback link: token space exhausted after %d attempts", createRetries)
}

// Resolution is the read-only state of a link as seen by the customer.
type Resolution struct { //nolint:govet // fieldalignment not critical
	Valid  bool                 `json:"valid"`
	Reason string               `json:"reason,omitempty"` // "invalid", "used" or "expired"
	Link   *models.FeedbackLink `json:"link,omitempty"`
}

// Resolve looks a token up without side effects. Reasons are checked in
// priority order: not found, already used, expired.
func (s *Service) Resolve(ctx context.Context, token string) (*Resolution, error) {
	link, err := s.repo.GetFeedbackLinkByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return &Resolution{Reason: "invalid"}, nil
	}
	if err != nil {
		return nil, err
	}
	if link.IsUsed {
		return &Resolution{Reason: "used"}, nil
	}
	if link.Expired(s.now()) {
		return &Resolution{Reason: "expired"}, nil
	}
	return &Resolution{Valid: true, Link: link}, nil
}

// Redeem records a submission against a valid link and marks the link used,
// as one logical transaction. Validity is re-checked at redemption time; a
// stale earlier Resolve is never trusted. The notification fan-out runs in
// the background and cannot fail the redemption.
func (s *Service) Redeem(ctx context.Context, token string, feedbackType models.FeedbackType, comment string) (*models.FeedbackSubmission, error) {
	submission, err := s.repo.RedeemFeedbackLink(ctx, token, feedbackType, comment, s.now())
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		link, err := s.repo.GetFeedbackLinkByToken(ctx, token)
		if err != nil {
			slog.Error("loading link for notification", "token", token, "error", err)
			return submission, nil
		}
		go s.notifier.FeedbackReceived(context.WithoutCancel(ctx), link, submission)
	}

	return submission, nil
}

// GenerateToken returns a URL-safe high-entropy link token.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
