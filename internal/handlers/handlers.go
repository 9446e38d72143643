// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers contains all HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health returns the health status.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// errorJSON is the uniform error body.
func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}
