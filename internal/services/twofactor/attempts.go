// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package twofactor

import (
	"sync"
	"time"
)

// attemptLimiter is a fixed-window counter for failed verification attempts,
// keyed by user. Process-local: a restart resets all windows, which is an
// acceptable trade for a single-binary deployment.
type attemptLimiter struct {
	mu      sync.Mutex
	entries map[int64]*attemptWindow
	limit   int
	window  time.Duration
	now     func() time.Time
}

type attemptWindow struct {
	start    time.Time
	failures int
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		entries: make(map[int64]*attemptWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// allow reports whether the user may attempt another verification.
func (l *attemptLimiter) allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[userID]
	if !ok {
		return true
	}
	if l.now().Sub(entry.start) >= l.window {
		delete(l.entries, userID)
		return true
	}
	return entry.failures < l.limit
}

// recordFailure counts a failed attempt against the current window.
func (l *attemptLimiter) recordFailure(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[userID]
	if !ok || now.Sub(entry.start) >= l.window {
		l.entries[userID] = &attemptWindow{start: now, failures: 1}
		return
	}
	entry.failures++
}

// reset clears the window after a successful verification.
func (l *attemptLimiter) reset(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, userID)
}
