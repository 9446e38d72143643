// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package gate decides what an authenticated user reaching a protected area
// sees: the content, a two-factor challenge, or the enrollment flow.
package gate

// Action is the outcome of the gate decision.
type Action int

const (
	// ShowContent renders the protected content.
	ShowContent Action = iota
	// ShowChallenge prompts for a TOTP or backup code.
	ShowChallenge
	// ShowSetup starts two-factor enrollment.
	ShowSetup
)

func (a Action) String() string {
	switch a {
	case ShowChallenge:
		return "challenge"
	case ShowSetup:
		return "setup"
	default:
		return "content"
	}
}

// Input captures everything the decision depends on. Pure data so the
// decision tree is testable without a session or a store.
type Input struct {
	Required        bool // two-factor organizationally required for this user
	SessionVerified bool // a verified marker exists for this session
	Enrolled        bool // the user has an enabled credential
}

// Decide implements the protected-route decision tree. Verification is
// cached per session: once SessionVerified, the user is never re-challenged
// until the session ends.
func Decide(in Input) Action {
	if !in.Required {
		return ShowContent
	}
	if in.SessionVerified {
		return ShowContent
	}
	if in.Enrolled {
		return ShowChallenge
	}
	return ShowSetup
}

// Policy decides whether two-factor authentication is organizationally
// required for a user.
type Policy struct {
	RequireForAdmins bool
	RequireForAll    bool
}

// RequiredFor applies the policy to a user's role.
func (p Policy) RequiredFor(isAdmin bool) bool {
	if p.RequireForAll {
		return true
	}
	return p.RequireForAdmins && isAdmin
}
