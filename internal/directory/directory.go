// Package directory resolves principals against the Authentication
// Service's user directory. The vault core never manages identities; it
// only looks them up.
package directory

import (
	"context"
	"errors"
	"strings"
)

// Principal is an authenticated identity external to the vault core.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

var (
	ErrNotFound     = errors.New("directory: principal not found")
	ErrInvalidEmail = errors.New("directory: invalid email address")
)

// Directory is the read-only lookup surface over the identity provider.
type Directory interface {
	// ResolveByEmail returns the principal id for an exact, case-sensitive
	// email match.
	ResolveByEmail(ctx context.Context, email string) (string, error)
	// Lookup returns the principal record for an id.
	Lookup(ctx context.Context, id string) (Principal, error)
	// EmailsByIDs maps each known id to its email; unknown ids are omitted.
	EmailsByIDs(ctx context.Context, principalIDs []string) (map[string]string, error)
}

// ValidateEmail performs the basic local@domain syntactic check applied
// before any directory call.
func ValidateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidEmail
	}
	if strings.ContainsAny(email, " \t\n") {
		return ErrInvalidEmail
	}
	if strings.Count(email, "@") != 1 {
		return ErrInvalidEmail
	}
	return nil
}
