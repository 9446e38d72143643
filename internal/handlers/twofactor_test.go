// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickfeed/tickfeed/internal/auth"
	"github.com/tickfeed/tickfeed/internal/handlers"
	"github.com/tickfeed/tickfeed/internal/models"
	"github.com/tickfeed/tickfeed/internal/repository"
	"github.com/tickfeed/tickfeed/internal/services/session"
	"github.com/tickfeed/tickfeed/internal/services/twofactor"
	"github.com/tickfeed/tickfeed/internal/testutil"
)

type twoFactorFixture struct {
	handlers *handlers.TwoFactorHandlers
	svc      *twofactor.Service
	sessions *session.Manager
	repo     *repository.Repository
	user     *models.User
	sess     *session.Session
	echo     *echo.Echo
}

func newTwoFactorFixture(t *testing.T) *twoFactorFixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	svc := twofactor.NewService(repo, "tickfeed")
	sessions, err := session.NewManager("tickfeed_session", 86400, session.GenerateKey(), "", false)
	require.NoError(t, err)

	user := testutil.NewTestUser(t, repo, "admin@example.com", true)
	sess, err := sessions.Issue(httptest.NewRecorder(), user.ID)
	require.NoError(t, err)

	return &twoFactorFixture{
		handlers: handlers.NewTwoFactor(svc, sessions),
		svc:      svc,
		sessions: sessions,
		repo:     repo,
		user:     user,
		sess:     sess,
		echo:     echo.New(),
	}
}

// newContext builds an echo context carrying the authenticated user and
// session, as the auth middleware would.
func (f *twoFactorFixture) newContext(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	c, rec := testutil.NewEchoContext(f.echo, method, path, reader)

	ctx := auth.SetUser(c.Request().Context(), f.user)
	ctx = auth.SetSession(ctx, f.sess)
	c.SetRequest(c.Request().WithContext(ctx))
	return c, rec
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestTwoFactorSetup(t *testing.T) {
	f := newTwoFactorFixture(t)

	c, rec := f.newContext(http.MethodPost, "/auth/2fa/setup", "")

	require.NoError(t, f.handlers.Setup(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Secret      string   `json:"secret"`
		OTPAuthURL  string   `json:"otpauth_url"`
		BackupCodes []string `json:"backup_codes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.OTPAuthURL, "otpauth://totp/")
	assert.Len(t, resp.BackupCodes, 8)
}

func TestTwoFactorEnable(t *testing.T) {
	f := newTwoFactorFixture(t)

	enrollment, err := f.svc.BeginEnrollment(f.user.ID, f.user.Email)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"token": %q}`, totpCode(t, enrollment.Secret))
	c, rec := f.newContext(http.MethodPost, "/auth/2fa/enable", body)

	require.NoError(t, f.handlers.Enable(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Enabling counts as verified for this session
	assert.True(t, f.sessions.IsVerified(f.sess))
}

func TestTwoFactorEnable_InvalidCode(t *testing.T) {
	f := newTwoFactorFixture(t)

	_, err := f.svc.BeginEnrollment(f.user.ID, f.user.Email)
	require.NoError(t, err)

	c, rec := f.newContext(http.MethodPost, "/auth/2fa/enable", `{"token": "000000"}`)

	require.NoError(t, f.handlers.Enable(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, f.sessions.IsVerified(f.sess))
}

func TestTwoFactorEnable_NoPendingEnrollment(t *testing.T) {
	f := newTwoFactorFixture(t)

	c, rec := f.newContext(http.MethodPost, "/auth/2fa/enable", `{"token": "123456"}`)

	require.NoError(t, f.handlers.Enable(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwoFactorVerify_Token(t *testing.T) {
	f := newTwoFactorFixture(t)

	enrollment := f.enroll(t)

	body := fmt.Sprintf(`{"token": %q}`, totpCode(t, enrollment.Secret))
	c, rec := f.newContext(http.MethodPost, "/auth/2fa/verify", body)

	require.NoError(t, f.handlers.Verify(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.sessions.IsVerified(f.sess))
}

func TestTwoFactorVerify_BackupCode(t *testing.T) {
	f := newTwoFactorFixture(t)

	enrollment := f.enroll(t)

	body := fmt.Sprintf(`{"backup_code": %q}`, enrollment.BackupCodes[0])
	c, rec := f.newContext(http.MethodPost, "/auth/2fa/verify", body)

	require.NoError(t, f.handlers.Verify(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.sessions.IsVerified(f.sess))
}

func TestTwoFactorVerify_WrongCode(t *testing.T) {
	f := newTwoFactorFixture(t)

	f.enroll(t)

	c, rec := f.newContext(http.MethodPost, "/auth/2fa/verify", `{"token": "000000"}`)

	require.NoError(t, f.handlers.Verify(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, f.sessions.IsVerified(f.sess))
}

func TestTwoFactorVerify_MissingInput(t *testing.T) {
	f := newTwoFactorFixture(t)

	c, rec := f.newContext(http.MethodPost, "/auth/2fa/verify", `{}`)

	require.NoError(t, f.handlers.Verify(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwoFactorVerify_RateLimited(t *testing.T) {
	f := newTwoFactorFixture(t)

	f.enroll(t)

	for range 5 {
		c, rec := f.newContext(http.MethodPost, "/auth/2fa/verify", `{"token": "000000"}`)
		require.NoError(t, f.handlers.Verify(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	c, rec := f.newContext(http.MethodPost, "/auth/2fa/verify", `{"token": "000000"}`)
	require.NoError(t, f.handlers.Verify(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestTwoFactorDisable(t *testing.T) {
	f := newTwoFactorFixture(t)

	enrollment := f.enroll(t)

	body := fmt.Sprintf(`{"token": %q}`, totpCode(t, enrollment.Secret))
	c, rec := f.newContext(http.MethodPost, "/auth/2fa/disable", body)

	require.NoError(t, f.handlers.Disable(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	enabled, err := f.repo.HasEnabledTwoFactor(c.Request().Context(), f.user.ID)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestTwoFactorRegenerateBackupCodes(t *testing.T) {
	f := newTwoFactorFixture(t)

	f.enroll(t)

	c, rec := f.newContext(http.MethodPost, "/auth/2fa/backup-codes", "")

	require.NoError(t, f.handlers.RegenerateBackupCodes(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success     bool     `json:"success"`
		BackupCodes []string `json:"backup_codes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.BackupCodes, 8)
}

func TestTwoFactorStatus(t *testing.T) {
	f := newTwoFactorFixture(t)

	c, rec := f.newContext(http.MethodGet, "/auth/2fa/status", "")
	require.NoError(t, f.handlers.Status(c))

	var status twofactor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Enabled)

	f.enroll(t)

	c, rec = f.newContext(http.MethodGet, "/auth/2fa/status", "")
	require.NoError(t, f.handlers.Status(c))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Enabled)
	assert.Equal(t, int64(8), status.BackupCodesRemaining)
}

// enroll completes a full enrollment outside the handler under test.
func (f *twoFactorFixture) enroll(t *testing.T) *twofactor.Enrollment {
	t.Helper()
	enrollment, err := f.svc.BeginEnrollment(f.user.ID, f.user.Email)
	require.NoError(t, err)

	c, _ := f.newContext(http.MethodPost, "/auth/2fa/enable", "")
	require.NoError(t, f.svc.ConfirmEnrollment(c.Request().Context(), f.user.ID, totpCode(t, enrollment.Secret)))
	return enrollment
}
