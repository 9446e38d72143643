// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package twofactor implements TOTP enrollment and verification with
// single-use backup codes.
package twofactor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tickfeed/tickfeed/internal/repository"
	"github.com/tickfeed/tickfeed/internal/services/backupcodes"
)

// Failed verifications per user tolerated inside one rate-limit window.
const (
	attemptLimit     = 5
	attemptWindowLen = 5 * time.Minute
)

var (
	// ErrInvalidCode is returned for a wrong TOTP or backup code.
	ErrInvalidCode = errors.New("invalid two-factor code")
	// ErrNotEnrolled is returned when the user has no enabled credential.
	ErrNotEnrolled = errors.New("two-factor authentication not enrolled")
	// ErrNoPendingEnrollment is returned when confirm is called without a
	// prior enrollment start.
	ErrNoPendingEnrollment = errors.New("no pending two-factor enrollment")
	// ErrTooManyAttempts is returned while the failed-attempt window is full.
	ErrTooManyAttempts = errors.New("too many failed two-factor attempts")
)

// Enrollment is a started but unconfirmed enrollment. Nothing is persisted
// until the user confirms with a valid code; the plaintext backup codes are
// only ever available here.
type Enrollment struct { //nolint:govet // fieldalignment not critical
	UserID      int64    `json:"-"`
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`

	codeHashes []string
}

// Service drives the enrollment and verification workflow.
type Service struct {
	repo   *repository.Repository
	codes  *backupcodes.Service
	issuer string

	mu      sync.Mutex
	pending map[int64]*Enrollment

	limiter *attemptLimiter
	now     func() time.Time
}

// NewService creates a two-factor service.
func NewService(repo *repository.Repository, issuer string) *Service {
	return &Service{
		repo:    repo,
		codes:   backupcodes.NewService(),
		issuer:  issuer,
		pending: make(map[int64]*Enrollment),
		limiter: newAttemptLimiter(attemptLimit, attemptWindowLen),
		now:     time.Now,
	}
}

// IsEnrolled reports whether the user has an enabled credential.
func (s *Service) IsEnrolled(ctx context.Context, userID int64) (bool, error) {
	return s.repo.HasEnabledTwoFactor(ctx, userID)
}

// BeginEnrollment generates a fresh secret and backup code set for the user
// and keeps them pending in memory. Restarting enrollment always issues a
// new secret; a previous pending secret is discarded.
func (s *Service) BeginEnrollment(userID int64, accountName string) (*Enrollment, error) {
	secret, url, err := generateKey(s.issuer, accountName)
	if err != nil {
		return nil, err
	}
	plaintexts, hashes, err := s.codes.GenerateSet()
	if err != nil {
		return nil, err
	}

	enrollment := &Enrollment{
		UserID:      userID,
		Secret:      secret,
		OTPAuthURL:  url,
		BackupCodes: plaintexts,
		codeHashes:  hashes,
	}

	s.mu.Lock()
	s.pending[userID] = enrollment
	s.mu.Unlock()

	return enrollment, nil
}

// ConfirmEnrollment completes a pending enrollment. Only a currently valid
// code persists the credential; a wrong code leaves the enrollment pending
// with the same secret so the user can retry with a newly read code.
func (s *Service) ConfirmEnrollment(ctx context.Context, userID int64, code string) error {
	s.mu.Lock()
	enrollment, ok := s.pending[userID]
	s.mu.Unlock()
	if !ok {
		return ErrNoPendingEnrollment
	}

	if !validateCode(enrollment.Secret, code, s.now()) {
		return ErrInvalidCode
	}

	if err := s.repo.EnableTwoFactor(ctx, userID, enrollment.Secret, enrollment.codeHashes); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()

	return nil
}

// VerifyCode checks a 6-digit TOTP code against the stored credential.
func (s *Service) VerifyCode(ctx context.Context, userID int64, code string) error {
	if !s.limiter.allow(userID) {
		return ErrTooManyAttempts
	}

	cred, err := s.repo.GetTwoFactorCredential(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotEnrolled
	}
	if err != nil {
		return err
	}
	if !cred.IsEnabled {
		return ErrNotEnrolled
	}

	if !validateCode(cred.Secret, code, s.now()) {
		s.limiter.recordFailure(userID)
		return ErrInvalidCode
	}

	s.limiter.reset(userID)
	return nil
}

// VerifyBackupCode checks a backup code and burns it. A consumed code is
// removed from the stored set and can never be reused.
func (s *Service) VerifyBackupCode(ctx context.Context, userID int64, code string) error {
	if !s.limiter.allow(userID) {
		return ErrTooManyAttempts
	}

	enrolled, err := s.repo.HasEnabledTwoFactor(ctx, userID)
	if err != nil {
		return err
	}
	if !enrolled {
		return ErrNotEnrolled
	}

	ok, err := s.repo.ConsumeBackupCode(ctx, userID, backupcodes.Normalize(code))
	if err != nil {
		return err
	}
	if !ok {
		s.limiter.recordFailure(userID)
		return ErrInvalidCode
	}

	s.limiter.reset(userID)
	return nil
}

// Disable deletes the credential and backup codes wholesale. A currently
// valid code is required so a hijacked session cannot silently weaken the
// account.
func (s *Service) Disable(ctx context.Context, userID int64, code string) error {
	if err := s.VerifyCode(ctx, userID, code); err != nil {
		return err
	}
	return s.repo.DisableTwoFactor(ctx, userID)
}

// RegenerateBackupCodes replaces the stored set wholesale and returns the
// new plaintexts for one-time display. Old codes are invalidated en masse.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID int64) ([]string, error) {
	enrolled, err := s.repo.HasEnabledTwoFactor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	plaintexts, hashes, err := s.codes.GenerateSet()
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}
	return plaintexts, nil
}

// Status describes the user's enrollment for the settings screen.
type Status struct {
	Enabled              bool  `json:"enabled"`
	BackupCodesRemaining int64 `json:"backup_codes_remaining"`
}

// GetStatus reports whether 2FA is enabled and how many backup codes remain.
func (s *Service) GetStatus(ctx context.Context, userID int64) (*Status, error) {
	enabled, err := s.repo.HasEnabledTwoFactor(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := &Status{Enabled: enabled}
	if enabled {
		status.BackupCodesRemaining, err = s.repo.CountUnusedBackupCodes(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	return status, nil
}
