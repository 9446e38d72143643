// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the application together and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"

	"github.com/tickfeed/tickfeed/internal/config"
	"github.com/tickfeed/tickfeed/internal/database"
	"github.com/tickfeed/tickfeed/internal/gate"
	"github.com/tickfeed/tickfeed/internal/handlers"
	appmw "github.com/tickfeed/tickfeed/internal/middleware"
	"github.com/tickfeed/tickfeed/internal/repository"
	"github.com/tickfeed/tickfeed/internal/services/feedback"
	"github.com/tickfeed/tickfeed/internal/services/notify"
	"github.com/tickfeed/tickfeed/internal/services/session"
	"github.com/tickfeed/tickfeed/internal/services/twofactor"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	repo := repository.New(db)

	// Flag settings rows nobody reads, usually leftovers from old versions.
	if unknown, err := repo.UnknownSettings(ctx); err != nil {
		slog.Warn("failed to inspect settings table", "error", err)
	} else if len(unknown) > 0 {
		slog.Warn("ignoring unknown settings keys", "keys", unknown)
	}

	// Sessions
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")
	sessions, err := session.NewManager(
		cfg.Session.CookieName, cfg.Session.MaxAge,
		cfg.Session.HashKey, cfg.Session.BlockKey, secure)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	// Services
	notifier := notify.NewService(repo, &cfg.SMTP)
	feedbackSvc := feedback.NewService(repo, notifier,
		cfg.Feedback.DefaultExpiryHours, cfg.Feedback.MaxExpiryHours)
	twofactorSvc := twofactor.NewService(repo, cfg.TwoFactor.Issuer)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, cfg, repo, sessions, feedbackSvc, twofactorSvc)

	return startWithGracefulShutdown(e, cfg)
}

func setupRoutes(
	e *echo.Echo,
	cfg *config.Config,
	repo *repository.Repository,
	sessions *session.Manager,
	feedbackSvc *feedback.Service,
	twofactorSvc *twofactor.Service,
) {
	feedbackH := handlers.NewFeedback(feedbackSvc, repo, cfg)
	authH := handlers.NewAuth(repo, sessions)
	twofactorH := handlers.NewTwoFactor(twofactorSvc, sessions)
	adminH := handlers.NewAdmin(repo)

	policy := gate.Policy{
		RequireForAdmins: cfg.TwoFactor.RequireForAdmins,
		RequireForAll:    cfg.TwoFactor.RequireForAll,
	}

	loadUser := appmw.LoadUser(sessions, repo)
	requireTwoFactor := appmw.RequireTwoFactor(sessions, repo, policy)

	e.GET("/health", handlers.Health)

	// Customer-facing redemption flow, no authentication
	e.GET("/feedback/:token", feedbackH.ResolveLink)
	e.POST("/feedback/:token", feedbackH.SubmitFeedback)

	// Ticket-system ingestion, shared-secret authenticated
	e.POST("/hooks/links", feedbackH.IngestLink)

	// Programmatic API, bearer authenticated
	api := e.Group("/api", appmw.RequireBearer(cfg.API.JWTSecret))
	api.POST("/links", feedbackH.CreateLink)

	// Session auth
	e.POST("/auth/login", loadUser(authH.Login))
	e.POST("/auth/logout", loadUser(authH.Logout))

	// Two-factor enrollment and verification (session authenticated, but
	// outside the gate: the challenge must be reachable before verification)
	twofa := e.Group("/auth/2fa", loadUser, appmw.RequireAuth)
	twofa.GET("/status", twofactorH.Status)
	twofa.POST("/setup", twofactorH.Setup)
	twofa.POST("/enable", twofactorH.Enable)
	twofa.POST("/verify", twofactorH.Verify)
	twofa.POST("/disable", twofactorH.Disable)
	twofa.POST("/backup-codes", twofactorH.RegenerateBackupCodes)

	// Admin dashboard, behind the two-factor gate
	admin := e.Group("/admin", loadUser, appmw.RequireAuth, appmw.RequireAdmin, requireTwoFactor)
	admin.GET("/links", feedbackH.ListLinks)
	admin.GET("/stats", feedbackH.Stats)
	admin.GET("/users", adminH.ListUsers)
	admin.POST("/users", adminH.CreateUser)
	admin.PUT("/users/:id/role", adminH.SetUserRole)
	admin.GET("/recipients", adminH.ListRecipients)
	admin.POST("/recipients", adminH.AddRecipient)
	admin.DELETE("/recipients/:id", adminH.DeleteRecipient)
	admin.GET("/settings/notifications", adminH.NotificationSettings)
	admin.PUT("/settings/notifications", adminH.UpdateNotificationSettings)
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errChan := make(chan error, 1)

	go func() {
		slog.Info("server running", "url", cfg.Server.BaseURL)
		var err error
		if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
			err = e.StartTLS(addr, cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
