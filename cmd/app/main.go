// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tickfeed/tickfeed/internal/config"
	"github.com/tickfeed/tickfeed/internal/middleware"
	"github.com/tickfeed/tickfeed/internal/server"
)

func main() {
	cmd := &cli.Command{
		Name:   "tickfeed",
		Usage:  "Customer feedback collection for support tickets",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			{
				Name:      "token",
				Usage:     "Mint an API bearer token for a ticket-system integration",
				ArgsUsage: "<subject>",
				Flags:     config.Flags(),
				Action:    issueToken,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func issueToken(_ context.Context, cmd *cli.Command) error {
	subject := cmd.Args().First()
	if subject == "" {
		return errors.New("usage: tickfeed token <subject>")
	}

	cfg := config.NewFromCLI(cmd)
	if cfg.API.JWTSecret == "" {
		return errors.New("api-jwt-secret is not configured")
	}

	token, err := middleware.IssueBearer(cfg.API.JWTSecret, subject)
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}

	fmt.Println(token)
	return nil
}
