// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session manages signed browser sessions and the session-scoped
// two-factor verification markers.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// Session is the decoded content of the session cookie.
type Session struct {
	ID     string
	UserID int64
}

// Manager issues and reads securecookie-signed sessions. The two-factor
// "verified this session" markers live only in process memory, keyed by
// session id and user id; they are never persisted, so every new browser
// session re-challenges. Markers carry the time they were set and age out
// with the cookie lifetime, so sessions that lapse without an explicit
// sign-out do not accumulate.
type Manager struct { //nolint:govet // fieldalignment not critical
	codec      *securecookie.SecureCookie
	cookieName string
	maxAge     int
	secure     bool

	mu        sync.Mutex
	verified  map[string]time.Time
	markerTTL time.Duration
	now       func() time.Time
}

// NewManager creates a session manager. An empty hashKey generates an
// ephemeral key, which invalidates all sessions on restart; fine for
// development, logged as a warning.
func NewManager(cookieName string, maxAge int, hashKey, blockKey string, secure bool) (*Manager, error) {
	hash, err := keyBytes(hashKey)
	if err != nil {
		return nil, fmt.Errorf("session hash key: %w", err)
	}
	if hash == nil {
		hash = securecookie.GenerateRandomKey(32)
		slog.Warn("no session hash key configured, sessions reset on restart")
	}

	var block []byte
	if blockKey != "" {
		block, err = keyBytes(blockKey)
		if err != nil {
			return nil, fmt.Errorf("session block key: %w", err)
		}
	}

	codec := securecookie.New(hash, block)
	codec.MaxAge(maxAge)

	return &Manager{
		codec:      codec,
		cookieName: cookieName,
		maxAge:     maxAge,
		secure:     secure,
		verified:   make(map[string]time.Time),
		markerTTL:  time.Duration(maxAge) * time.Second,
		now:        time.Now,
	}, nil
}

// Issue starts a new session for the user and sets the cookie.
func (m *Manager) Issue(w http.ResponseWriter, userID int64) (*Session, error) {
	sess := &Session{ID: uuid.NewString(), UserID: userID}

	value := map[string]string{
		"id":      sess.ID,
		"user_id": fmt.Sprintf("%d", sess.UserID),
	}
	encoded, err := m.codec.Encode(m.cookieName, value)
	if err != nil {
		return nil, fmt.Errorf("encoding session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// Get decodes the session from the request cookie. Returns nil when no
// valid session is present.
func (m *Manager) Get(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil
	}

	value := map[string]string{}
	if err := m.codec.Decode(m.cookieName, cookie.Value, &value); err != nil {
		return nil
	}

	var userID int64
	if _, err := fmt.Sscanf(value["user_id"], "%d", &userID); err != nil || userID == 0 {
		return nil
	}
	if value["id"] == "" {
		return nil
	}
	return &Session{ID: value["id"], UserID: userID}
}

// Clear signs the user out: the cookie is expired and the session's
// verification marker dropped.
func (m *Manager) Clear(w http.ResponseWriter, sess *Session) {
	if sess != nil {
		m.mu.Lock()
		delete(m.verified, markerKey(sess.ID, sess.UserID))
		m.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// MarkVerified records a successful two-factor check for this session.
// Stale markers from lapsed sessions are swept here as well.
func (m *Manager) MarkVerified(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired()
	m.verified[markerKey(sess.ID, sess.UserID)] = m.now()
}

// IsVerified reports whether this session already passed a two-factor check.
// A marker older than the cookie lifetime counts as gone.
func (m *Manager) IsVerified(sess *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := markerKey(sess.ID, sess.UserID)
	added, ok := m.verified[key]
	if !ok {
		return false
	}
	if m.markerExpired(added) {
		delete(m.verified, key)
		return false
	}
	return true
}

func (m *Manager) markerExpired(added time.Time) bool {
	return m.markerTTL > 0 && m.now().Sub(added) >= m.markerTTL
}

// evictExpired drops stale markers. Callers hold the lock.
func (m *Manager) evictExpired() {
	for key, added := range m.verified {
		if m.markerExpired(added) {
			delete(m.verified, key)
		}
	}
}

func markerKey(sessionID string, userID int64) string {
	return fmt.Sprintf("%s:%d", sessionID, userID)
}

// keyBytes decodes a hex key, accepting raw bytes as a fallback.
func keyBytes(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	if decoded, err := hex.DecodeString(key); err == nil {
		return decoded, nil
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("key must be at least 32 bytes or hex-encoded")
	}
	return []byte(key), nil
}

// GenerateKey returns a fresh random hex key for configuration bootstrap.
func GenerateKey() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
