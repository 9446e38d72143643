// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tickfeed/tickfeed/internal/config"
	"github.com/tickfeed/tickfeed/internal/models"
	"github.com/tickfeed/tickfeed/internal/repository"
	"github.com/tickfeed/tickfeed/internal/services/feedback"
)

// FeedbackHandlers serves the customer-facing redemption flow and the
// programmatic link creation endpoints.
type FeedbackHandlers struct {
	svc  *feedback.Service
	repo *repository.Repository
	cfg  *config.Config
}

// NewFeedback creates a new FeedbackHandlers instance.
func NewFeedback(svc *feedback.Service, repo *repository.Repository, cfg *config.Config) *FeedbackHandlers {
	return &FeedbackHandlers{svc: svc, repo: repo, cfg: cfg}
}

// resolveResponse is what the redemption page renders from.
type resolveResponse struct { //nolint:govet // fieldalignment not critical
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason,omitempty"`
	TicketNumber string `json:"ticket_number,omitempty"`
	TicketTitle  string `json:"ticket_title,omitempty"`
	Technician   string `json:"technician,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
	Preselect    string `json:"preselect,omitempty"`
}

// ResolveLink handles GET /feedback/:token. Read-only; the optional ?type=
// query parameter preselects a rating for one-click flows.
func (h *FeedbackHandlers) ResolveLink(c echo.Context) error {
	resolution, err := h.svc.Resolve(c.Request().Context(), c.Param("token"))
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "database error")
	}
	if !resolution.Valid {
		return c.JSON(reasonStatus(resolution.Reason), resolveResponse{Reason: resolution.Reason})
	}

	resp := resolveResponse{
		Valid:        true,
		TicketNumber: resolution.Link.TicketNumber,
		TicketTitle:  resolution.Link.TicketTitle,
		Technician:   resolution.Link.Technician,
		CustomerName: resolution.Link.CustomerName,
	}
	if preselect := c.QueryParam("type"); preselect != "" {
		if parsed, err := models.ParseFeedbackType(preselect); err == nil {
			resp.Preselect = string(parsed)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// SubmitRequest is the redemption body.
type SubmitRequest struct {
	FeedbackType string `json:"feedback_type"`
	Comment      string `json:"comment"`
}

// SubmitFeedback handles POST /feedback/:token. Validity is re-checked at
// redemption time inside the store transaction, so a link that expired or
// was redeemed after the page loaded is still rejected.
func (h *FeedbackHandlers) SubmitFeedback(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	feedbackType, err := models.ParseFeedbackType(req.FeedbackType)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "feedback_type must be bad, neutral or happy")
	}

	submission, err := h.svc.Redeem(c.Request().Context(), c.Param("token"), feedbackType, req.Comment)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, resolveResponse{Reason: "invalid"})
	case errors.Is(err, repository.ErrLinkUsed):
		return c.JSON(http.StatusConflict, resolveResponse{Reason: "used"})
	case errors.Is(err, repository.ErrLinkExpired):
		return c.JSON(http.StatusGone, resolveResponse{Reason: "expired"})
	case err != nil:
		slog.Error("redeeming feedback link", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to record feedback")
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"success":      true,
		"submitted_at": submission.SubmittedAt,
	})
}

// CreateLinkRequest is the body for programmatic link creation. Used by both
// the authenticated /api endpoint and the ticket-system ingestion hook.
type CreateLinkRequest struct { //nolint:govet // fieldalignment not critical
	TicketNumber  string `json:"ticket_number"`
	Technician    string `json:"technician"`
	TicketTitle   string `json:"ticket_title"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	ExpiresHours  int    `json:"expires_hours"`
}

// CreateLink handles POST /api/links (bearer authenticated).
func (h *FeedbackHandlers) CreateLink(c echo.Context) error {
	return h.createLink(c)
}

// IngestLink handles POST /hooks/links for third-party ticket systems,
// authenticated by a shared secret header instead of a bearer token.
func (h *FeedbackHandlers) IngestLink(c echo.Context) error {
	secret := h.cfg.API.WebhookSecret
	if secret == "" || c.Request().Header.Get("X-Webhook-Secret") != secret {
		return errorJSON(c, http.StatusUnauthorized, "invalid webhook secret")
	}
	return h.createLink(c)
}

func (h *FeedbackHandlers) createLink(c echo.Context) error {
	var req CreateLinkRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	link, err := h.svc.CreateLink(c.Request().Context(), feedback.CreateLinkInput{
		TicketNumber:  req.TicketNumber,
		Technician:    req.Technician,
		TicketTitle:   req.TicketTitle,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		ExpiresHours:  req.ExpiresHours,
	})
	switch {
	case errors.Is(err, feedback.ErrMissingTicketNumber),
		errors.Is(err, feedback.ErrMissingTechnician),
		errors.Is(err, feedback.ErrMissingTicketTitle),
		errors.Is(err, feedback.ErrInvalidExpiry):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case err != nil:
		slog.Error("creating feedback link", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to create link")
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"data": map[string]any{
			"token":         link.Token,
			"feedback_url":  h.cfg.FeedbackURL(link.Token),
			"ticket_number": link.TicketNumber,
			"expires_at":    link.ExpiresAt,
		},
	})
}

// Stats handles GET /admin/stats: aggregated analytics for the dashboard.
// ?days=N restricts the window; default covers everything.
func (h *FeedbackHandlers) Stats(c echo.Context) error {
	var since time.Time
	if days := c.QueryParam("days"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return errorJSON(c, http.StatusBadRequest, "days must be a positive number")
		}
		since = time.Now().Add(-time.Duration(n) * 24 * time.Hour)
	}

	stats, err := h.repo.GetFeedbackStats(c.Request().Context(), since)
	if err != nil {
		slog.Error("aggregating feedback stats", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "database error")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"links_created": stats.LinksCreated,
		"submissions":   stats.Submissions,
		"bad":           stats.Bad,
		"neutral":       stats.Neutral,
		"happy":         stats.Happy,
		"response_rate": stats.ResponseRate(),
	})
}

// ListLinks handles GET /admin/links for the dashboard.
func (h *FeedbackHandlers) ListLinks(c echo.Context) error {
	links, err := h.repo.ListFeedbackLinks(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "database error")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": links})
}

func reasonStatus(reason string) int {
	switch reason {
	case "used":
		return http.StatusConflict
	case "expired":
		return http.StatusGone
	default:
		return http.StatusNotFound
	}
}
