// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package notify fans out feedback notifications to email recipients and an
// optional outbound webhook. Delivery is best effort: failures are logged
// for operators and never surfaced to the submitting customer.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/tickfeed/tickfeed/internal/config"
	"github.com/tickfeed/tickfeed/internal/models"
	"github.com/tickfeed/tickfeed/internal/repository"
)

const webhookTimeout = 10 * time.Second

// Service delivers feedback notifications.
type Service struct {
	repo   *repository.Repository
	smtp   *config.SMTPConfig
	client *http.Client
}

// NewService creates a notification service. SMTP delivery is skipped when
// no host is configured.
func NewService(repo *repository.Repository, smtp *config.SMTPConfig) *Service {
	return &Service{
		repo:   repo,
		smtp:   smtp,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// FeedbackReceived implements feedback.Notifier. It is called in the
// background after a committed redemption.
func (s *Service) FeedbackReceived(ctx context.Context, link *models.FeedbackLink, submission *models.FeedbackSubmission) {
	settings, err := s.repo.LoadNotificationSettings(ctx)
	if err != nil {
		slog.Error("loading notification settings", "error", err)
		settings = repository.DefaultNotificationSettings()
	}

	if settings.EmailEnabled && s.smtp.Host != "" {
		s.sendEmails(ctx, settings.Subject, link, submission)
	}
	if settings.WebhookURL != "" {
		s.sendWebhook(ctx, settings.WebhookURL, link, submission)
	}
}

func (s *Service) sendEmails(ctx context.Context, subject string, link *models.FeedbackLink, submission *models.FeedbackSubmission) {
	recipients, err := s.repo.ListEnabledNotificationRecipients(ctx)
	if err != nil {
		slog.Error("loading notification recipients", "error", err)
		return
	}
	if len(recipients) == 0 {
		return
	}

	body := fmt.Sprintf(
		"New feedback for ticket %s (%s)\n\nTechnician: %s\nRating: %s\nComment: %s\nSubmitted: %s\n",
		link.TicketNumber, link.TicketTitle, link.Technician,
		submission.FeedbackType, submission.Comment,
		submission.SubmittedAt.Format(time.RFC3339))

	for _, recipient := range recipients {
		if err := s.send(recipient.Email, subject, body); err != nil {
			slog.Error("sending notification email",
				"recipient", recipient.Email, "ticket", link.TicketNumber, "error", err)
		}
	}
}

// send sends an email via SMTP using go-mail.
func (s *Service) send(to, subject, body string) error {
	msg := mail.NewMsg()

	if s.smtp.FromName != "" {
		if err := msg.FromFormat(s.smtp.FromName, s.smtp.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.smtp.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.smtp.Port),
	}

	if s.smtp.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.smtp.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.smtp.Username != "" && s.smtp.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.smtp.Username),
			mail.WithPassword(s.smtp.Password),
		)
	}

	client, err := mail.NewClient(s.smtp.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// webhookPayload is the JSON body posted to the configured webhook.
type webhookPayload struct { //nolint:govet // fieldalignment not critical
	DeliveryID   string              `json:"delivery_id"`
	Event        string              `json:"event"`
	TicketNumber string              `json:"ticket_number"`
	TicketTitle  string              `json:"ticket_title"`
	Technician   string              `json:"technician"`
	FeedbackType models.FeedbackType `json:"feedback_type"`
	Comment      string              `json:"comment,omitempty"`
	SubmittedAt  time.Time           `json:"submitted_at"`
}

func (s *Service) sendWebhook(ctx context.Context, url string, link *models.FeedbackLink, submission *models.FeedbackSubmission) {
	payload := webhookPayload{
		DeliveryID:   uuid.NewString(),
		Event:        "feedback.received",
		TicketNumber: link.TicketNumber,
		TicketTitle:  link.TicketTitle,
		Technician:   link.Technician,
		FeedbackType: submission.FeedbackType,
		Comment:      submission.Comment,
		SubmittedAt:  submission.SubmittedAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encoding webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("building webhook request", "url", url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", payload.DeliveryID)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("delivering webhook", "url", url, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		slog.Error("webhook rejected", "url", url, "status", resp.StatusCode)
	}
}
