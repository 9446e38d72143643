// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package feedback_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"github.com/tickfeed/tickfeed/internal/database"
	"github.com/tickfeed/tickfeed/internal/models"
	"github.com/tickfeed/tickfeed/internal/repository"
	"github.com/tickfeed/tickfeed/internal/services/feedback"
	"github.com/tickfeed/tickfeed/internal/testutil"
)

// newFileDB opens a temp-file database so concurrent goroutines share one
// store across pooled connections.
func newFileDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "tickfeed.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db)
}

// fakeNotifier records fan-out calls for assertions.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 1)}
}

func (f *fakeNotifier) FeedbackReceived(_ context.Context, link *models.FeedbackLink, _ *models.FeedbackSubmission) {
	f.mu.Lock()
	f.calls = append(f.calls, link.Token)
	f.mu.Unlock()
	f.done <- struct{}{}
}

func (f *fakeNotifier) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func validInput() feedback.CreateLinkInput {
	return feedback.CreateLinkInput{
		TicketNumber: "T-1001",
		Technician:   "Alex",
		TicketTitle:  "Printer does not print",
	}
}

func TestCreateLink(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)

	link, err := svc.CreateLink(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, link.Token)
	assert.NotZero(t, link.ID)
	assert.False(t, link.IsUsed)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), link.ExpiresAt, time.Minute)
}

func TestCreateLink_CustomExpiry(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)

	in := validInput()
	in.ExpiresHours = 24

	link, err := svc.CreateLink(context.Background(), in)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), link.ExpiresAt, time.Minute)
}

func TestCreateLink_Validation(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*feedback.CreateLinkInput)
		wantErr error
	}{
		{"missing ticket number", func(in *feedback.CreateLinkInput) { in.TicketNumber = "  " }, feedback.ErrMissingTicketNumber},
		{"missing technician", func(in *feedback.CreateLinkInput) { in.Technician = "" }, feedback.ErrMissingTechnician},
		{"missing ticket title", func(in *feedback.CreateLinkInput) { in.TicketTitle = "" }, feedback.ErrMissingTicketTitle},
		{"negative expiry", func(in *feedback.CreateLinkInput) { in.ExpiresHours = -1 }, feedback.ErrInvalidExpiry},
		{"expiry above maximum", func(in *feedback.CreateLinkInput) { in.ExpiresHours = 169 }, feedback.ErrInvalidExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			_, err := svc.CreateLink(ctx, in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateLink_UniqueTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)
	ctx := context.Background()

	seen := make(map[string]bool)
	for range 50 {
		link, err := svc.CreateLink(ctx, validInput())
		require.NoError(t, err)
		assert.False(t, seen[link.Token])
		seen[link.Token] = true
	}
}

func TestResolve(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, validInput())
	require.NoError(t, err)

	res, err := svc.Resolve(ctx, link.Token)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.NotNil(t, res.Link)
	assert.Equal(t, "T-1001", res.Link.TicketNumber)
}

func TestResolve_Invalid(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)

	res, err := svc.Resolve(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "invalid", res.Reason)
}

func TestResolve_Used(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, link.Token, models.FeedbackHappy, "")
	require.NoError(t, err)

	res, err := svc.Resolve(ctx, link.Token)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "used", res.Reason)
}

func TestResolve_Expired(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)
	ctx := context.Background()

	expired := testutil.NewTestLink(t, repo, "expired-token", time.Now().Add(-time.Hour))

	res, err := svc.Resolve(ctx, expired.Token)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "expired", res.Reason)
}

func TestRedeem(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	notifier := newFakeNotifier()
	svc := feedback.NewService(repo, notifier, 72, 168)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, validInput())
	require.NoError(t, err)

	submission, err := svc.Redeem(ctx, link.Token, models.FeedbackBad, "Still broken")
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackBad, submission.FeedbackType)
	assert.Equal(t, "Still broken", submission.Comment)

	select {
	case <-notifier.done:
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}
	assert.Equal(t, []string{link.Token}, notifier.tokens())
}

func TestRedeem_SecondAttemptFails(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, link.Token, models.FeedbackHappy, "")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, link.Token, models.FeedbackBad, "changed my mind")
	assert.ErrorIs(t, err, repository.ErrLinkUsed)
}

func TestRedeem_ConcurrentAttemptsSingleWinner(t *testing.T) {
	db, repo := newFileDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, validInput())
	require.NoError(t, err)

	const racers = 8
	start := make(chan struct{})
	results := make(chan error, racers)

	var wg sync.WaitGroup
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Redeem(ctx, link.Token, models.FeedbackHappy, "")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrLinkUsed)
	}
	assert.Equal(t, 1, wins)

	var count int64
	require.NoError(t, db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM feedback_submissions WHERE feedback_link_id = ?`, link.ID))
	assert.Equal(t, int64(1), count)
}

func TestCreateLink_ConcurrentCreators(t *testing.T) {
	_, repo := newFileDB(t)
	svc := feedback.NewService(repo, nil, 72, 168)
	ctx := context.Background()

	const creators = 8
	tokens := make(chan string, creators)

	var wg sync.WaitGroup
	for range creators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, err := svc.CreateLink(ctx, validInput())
			if err != nil {
				t.Errorf("creating link: %v", err)
				return
			}
			tokens <- link.Token
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[string]bool)
	for token := range tokens {
		assert.False(t, seen[token])
		seen[token] = true
	}
	assert.Len(t, seen, creators)
}

func TestRedeem_Expired_NoNotification(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	notifier := newFakeNotifier()
	svc := feedback.NewService(repo, notifier, 72, 168)
	ctx := context.Background()

	expired := testutil.NewTestLink(t, repo, "expired-token", time.Now().Add(-time.Hour))

	_, err := svc.Redeem(ctx, expired.Token, models.FeedbackNeutral, "")
	assert.ErrorIs(t, err, repository.ErrLinkExpired)
	assert.Empty(t, notifier.tokens())
}

func TestGenerateToken(t *testing.T) {
	token, err := feedback.GenerateToken()
	require.NoError(t, err)

	// 32 bytes of entropy, base64url without padding
	assert.Len(t, token, 43)
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
}
