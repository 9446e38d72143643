// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package config holds the typed application configuration, populated from
// CLI flags, environment variables and a TOML config file.
package config

import (
	"fmt"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Session   SessionConfig
	SMTP      SMTPConfig
	Feedback  FeedbackConfig
	TwoFactor TwoFactorConfig
	API       APIConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
	TLSCertFile string
	TLSKeyFile  string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type FeedbackConfig struct {
	DefaultExpiryHours int // expiry applied when a request omits expires_hours
	MaxExpiryHours     int // upper bound accepted from callers
}

type TwoFactorConfig struct { //nolint:govet // fieldalignment not critical
	Issuer           string // issuer shown in authenticator apps
	RequireForAdmins bool
	RequireForAll    bool
}

type APIConfig struct {
	JWTSecret     string // HMAC secret for bearer tokens on /api
	WebhookSecret string // shared secret for the ticket-system ingestion hook
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			TLSCertFile: cmd.String("tls-cert-file"),
			TLSKeyFile:  cmd.String("tls-key-file"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Feedback: FeedbackConfig{
			DefaultExpiryHours: int(cmd.Int("feedback-expiry-hours")),
			MaxExpiryHours:     int(cmd.Int("feedback-max-expiry-hours")),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:           cmd.String("twofactor-issuer"),
			RequireForAdmins: cmd.Bool("twofactor-require-for-admins"),
			RequireForAll:    cmd.Bool("twofactor-require-for-all"),
		},
		API: APIConfig{
			JWTSecret:     cmd.String("api-jwt-secret"),
			WebhookSecret: cmd.String("webhook-secret"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// FeedbackURL constructs the customer-facing redemption URL for a token.
func (c *Config) FeedbackURL(token string) string {
	return fmt.Sprintf("%s/feedback/%s", strings.TrimSuffix(c.Server.BaseURL, "/"), token)
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "http"
	if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
		scheme = "https"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("server.tls_cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("server.tls_key_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/tickfeed.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   86400, // 24 hours in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (notifications disabled if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for notification emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name for notification emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Use TLS for SMTP connections",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// Feedback flags
		&cli.IntFlag{
			Name:    "feedback-expiry-hours",
			Value:   72,
			Usage:   "Default feedback link validity in hours",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FEEDBACK_EXPIRY_HOURS"), toml.TOML("feedback.expiry_hours", configFile)),
		},
		&cli.IntFlag{
			Name:    "feedback-max-expiry-hours",
			Value:   168,
			Usage:   "Maximum feedback link validity in hours",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FEEDBACK_MAX_EXPIRY_HOURS"), toml.TOML("feedback.max_expiry_hours", configFile)),
		},
		// Two-factor flags
		&cli.StringFlag{
			Name:    "twofactor-issuer",
			Value:   "tickfeed",
			Usage:   "Issuer name shown in authenticator apps",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TWOFACTOR_ISSUER"), toml.TOML("twofactor.issuer", configFile)),
		},
		&cli.BoolFlag{
			Name:    "twofactor-require-for-admins",
			Value:   true,
			Usage:   "Require two-factor authentication for admin users",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TWOFACTOR_REQUIRE_FOR_ADMINS"), toml.TOML("twofactor.require_for_admins", configFile)),
		},
		&cli.BoolFlag{
			Name:    "twofactor-require-for-all",
			Usage:   "Require two-factor authentication for every user",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TWOFACTOR_REQUIRE_FOR_ALL"), toml.TOML("twofactor.require_for_all", configFile)),
		},
		// API flags
		&cli.StringFlag{
			Name:    "api-jwt-secret",
			Usage:   "HMAC secret for API bearer tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("API_JWT_SECRET"), toml.TOML("api.jwt_secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Usage:   "Shared secret for the ticket-system ingestion hook (hook disabled if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("WEBHOOK_SECRET"), toml.TOML("api.webhook_secret", configFile)),
		},
	}
}
