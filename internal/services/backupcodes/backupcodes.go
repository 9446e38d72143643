// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package backupcodes generates single-use 2FA recovery codes.
package backupcodes

import (
	"crypto/rand"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// CodeLength is the length of each backup code.
	CodeLength = 8
	// CodeCount is the number of backup codes per set.
	CodeCount = 8
	// bcryptCost is the cost factor for bcrypt hashing.
	bcryptCost = 10
)

// alphabet for backup codes (uppercase + digits, excluding confusing chars: 0, O, I, 1).
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Service handles backup code generation.
type Service struct{}

// NewService creates a new backup code service.
func NewService() *Service {
	return &Service{}
}

// GenerateSet generates a full set of backup codes.
// Returns (plaintext codes for one-time display, bcrypt hashes for storage).
// The plaintext is not recoverable after this call.
func (s *Service) GenerateSet() ([]string, []string, error) {
	plaintexts := make([]string, CodeCount)
	hashes := make([]string, CodeCount)

	for i := range CodeCount {
		code, err := generateCode(CodeLength)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate code: %w", err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcryptCost)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash code: %w", err)
		}

		plaintexts[i] = code
		hashes[i] = string(hash)
	}

	return plaintexts, hashes, nil
}

// Normalize strips separators and uppercases user input for comparison.
func Normalize(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// generateCode generates a random code of the specified length.
func generateCode(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	for i := range bytes {
		bytes[i] = alphabet[int(bytes[i])%len(alphabet)]
	}

	return string(bytes), nil
}
