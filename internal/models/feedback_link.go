// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// FeedbackLink is a single-use, expiring survey link tied to a support ticket.
type FeedbackLink struct { //nolint:govet // fieldalignment: readability over optimization
	ID            int64      `db:"id" json:"id"`
	Token         string     `db:"token" json:"token"`
	TicketNumber  string     `db:"ticket_number" json:"ticket_number"`
	Technician    string     `db:"technician" json:"technician"`
	TicketTitle   string     `db:"ticket_title" json:"ticket_title"`
	CustomerEmail string     `db:"customer_email" json:"customer_email,omitempty"`
	CustomerName  string     `db:"customer_name" json:"customer_name,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
	IsUsed        bool       `db:"is_used" json:"is_used"`
	UsedAt        *time.Time `db:"used_at" json:"used_at,omitempty"`
}

// Expired reports whether the link's validity window has passed.
func (l *FeedbackLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Redeemable reports whether the link can still be redeemed.
func (l *FeedbackLink) Redeemable(now time.Time) bool {
	return !l.IsUsed && !l.Expired(now)
}
