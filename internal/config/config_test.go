// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocalhost(t *testing.T) {
	assert.True(t, IsLocalhost(""))
	assert.True(t, IsLocalhost("localhost"))
	assert.True(t, IsLocalhost("127.0.0.1"))
	assert.True(t, IsLocalhost("::1"))
	assert.True(t, IsLocalhost("app.localhost"))
	assert.False(t, IsLocalhost("example.com"))
	assert.False(t, IsLocalhost("localhost.example.com"))
}

func TestFeedbackURL(t *testing.T) {
	cfg := &Config{Server: ServerConfig{BaseURL: "https://feedback.example.com"}}
	assert.Equal(t, "https://feedback.example.com/feedback/abc123", cfg.FeedbackURL("abc123"))

	// Trailing slash in the base URL does not double up
	cfg.Server.BaseURL = "https://feedback.example.com/"
	assert.Equal(t, "https://feedback.example.com/feedback/abc123", cfg.FeedbackURL("abc123"))
}

func TestBuildBaseURL(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "localhost", Port: 8080}}
	assert.Equal(t, "http://localhost:8080", buildBaseURL(cfg))

	cfg = &Config{Server: ServerConfig{Host: "example.com", Port: 80}}
	assert.Equal(t, "http://example.com", buildBaseURL(cfg))

	cfg = &Config{Server: ServerConfig{
		Host: "example.com", Port: 443,
		TLSCertFile: "cert.pem", TLSKeyFile: "key.pem",
	}}
	assert.Equal(t, "https://example.com", buildBaseURL(cfg))

	cfg = &Config{Server: ServerConfig{
		Host: "example.com", Port: 8443,
		TLSCertFile: "cert.pem", TLSKeyFile: "key.pem",
	}}
	assert.Equal(t, "https://example.com:8443", buildBaseURL(cfg))
}
