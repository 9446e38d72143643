// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package twofactor_test

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickfeed/tickfeed/internal/services/twofactor"
	"github.com/tickfeed/tickfeed/internal/testutil"
)

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestEnrollmentWorkflow(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	enrolled, err := svc.IsEnrolled(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)

	enrollment, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Len(t, enrollment.BackupCodes, 8)

	// Nothing persisted until confirmation
	enrolled, err = svc.IsEnrolled(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)

	require.NoError(t, svc.ConfirmEnrollment(ctx, user.ID, currentCode(t, enrollment.Secret)))

	enrolled, err = svc.IsEnrolled(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	status, err := svc.GetStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, int64(8), status.BackupCodesRemaining)
}

func TestConfirmEnrollment_InvalidCodeKeepsPending(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	enrollment, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)

	err = svc.ConfirmEnrollment(ctx, user.ID, "000000")
	assert.ErrorIs(t, err, twofactor.ErrInvalidCode)

	// The pending secret survives a failed confirmation
	require.NoError(t, svc.ConfirmEnrollment(ctx, user.ID, currentCode(t, enrollment.Secret)))
}

func TestConfirmEnrollment_NoPending(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	err := svc.ConfirmEnrollment(context.Background(), user.ID, "123456")
	assert.ErrorIs(t, err, twofactor.ErrNoPendingEnrollment)
}

func TestBeginEnrollment_RestartIssuesFreshSecret(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	first, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)
	second, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret)

	// Only the latest secret confirms
	err = svc.ConfirmEnrollment(context.Background(), user.ID, currentCode(t, first.Secret))
	assert.ErrorIs(t, err, twofactor.ErrInvalidCode)
}

func TestVerifyCode(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	enrollment, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEnrollment(ctx, user.ID, currentCode(t, enrollment.Secret)))

	assert.NoError(t, svc.VerifyCode(ctx, user.ID, currentCode(t, enrollment.Secret)))
	assert.ErrorIs(t, svc.VerifyCode(ctx, user.ID, "000000"), twofactor.ErrInvalidCode)
}

func TestVerifyCode_NotEnrolled(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	err := svc.VerifyCode(context.Background(), user.ID, "123456")
	assert.ErrorIs(t, err, twofactor.ErrNotEnrolled)
}

func TestVerifyCode_RateLimited(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	enrollment, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEnrollment(ctx, user.ID, currentCode(t, enrollment.Secret)))

	for range 5 {
		assert.ErrorIs(t, svc.VerifyCode(ctx, user.ID, "000000"), twofactor.ErrInvalidCode)
	}

	// Even a valid code is rejected while the window is full
	err = svc.VerifyCode(ctx, user.ID, currentCode(t, enrollment.Secret))
	assert.ErrorIs(t, err, twofactor.ErrTooManyAttempts)
}

func TestVerifyBackupCode_SingleUse(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	enrollment, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEnrollment(ctx, user.ID, currentCode(t, enrollment.Secret)))

	code := enrollment.BackupCodes[0]
	require.NoError(t, svc.VerifyBackupCode(ctx, user.ID, code))
	assert.ErrorIs(t, svc.VerifyBackupCode(ctx, user.ID, code), twofactor.ErrInvalidCode)

	status, err := svc.GetStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), status.BackupCodesRemaining)
}

func TestVerifyBackupCode_NormalizesInput(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	enrollment, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEnrollment(ctx, user.ID, currentCode(t, enrollment.Secret)))

	code := enrollment.BackupCodes[0]
	spaced := code[:4] + "-" + code[4:]
	assert.NoError(t, svc.VerifyBackupCode(ctx, user.ID, spaced))
}

func TestDisable(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	enrollment, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEnrollment(ctx, user.ID, currentCode(t, enrollment.Secret)))

	// Wrong code must not disable
	assert.ErrorIs(t, svc.Disable(ctx, user.ID, "000000"), twofactor.ErrInvalidCode)

	require.NoError(t, svc.Disable(ctx, user.ID, currentCode(t, enrollment.Secret)))

	enrolled, err := svc.IsEnrolled(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestRegenerateBackupCodes(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	enrollment, err := svc.BeginEnrollment(user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEnrollment(ctx, user.ID, currentCode(t, enrollment.Secret)))

	newCodes, err := svc.RegenerateBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, newCodes, 8)

	// Old set is fully invalidated
	err = svc.VerifyBackupCode(ctx, user.ID, enrollment.BackupCodes[0])
	assert.ErrorIs(t, err, twofactor.ErrInvalidCode)
	assert.NoError(t, svc.VerifyBackupCode(ctx, user.ID, newCodes[0]))
}

func TestRegenerateBackupCodes_NotEnrolled(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")

	user := testutil.NewTestUser(t, repo, "user@example.com", false)

	_, err := svc.RegenerateBackupCodes(context.Background(), user.ID)
	assert.ErrorIs(t, err, twofactor.ErrNotEnrolled)
}
