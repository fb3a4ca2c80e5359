package directory

import (
	"context"
	"errors"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"a@b.co",
		"user.name+tag@example.com",
		"x@localhost",
	}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Fatalf("ValidateEmail(%q): %v", email, err)
		}
	}

	invalid := []string{
		"",
		"no-at-sign",
		"@leading.at",
		"trailing.at@",
		"two@@example.com",
		"a@b@c.com",
		"space in@example.com",
	}
	for _, email := range invalid {
		if err := ValidateEmail(email); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("ValidateEmail(%q): expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestMemoryDirectory(t *testing.T) {
	m := NewMemory()
	m.Add(Principal{ID: "u1", Email: "one@example.com", DisplayName: "One"})
	m.Add(Principal{ID: "u2", Email: "two@example.com"})
	ctx := context.Background()

	id, err := m.ResolveByEmail(ctx, "one@example.com")
	if err != nil || id != "u1" {
		t.Fatalf("ResolveByEmail: id=%q err=%v", id, err)
	}
	// Exact match only.
	if _, err := m.ResolveByEmail(ctx, "One@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("case-variant lookup: expected ErrNotFound, got %v", err)
	}

	p, err := m.Lookup(ctx, "u1")
	if err != nil || p.DisplayName != "One" {
		t.Fatalf("Lookup: %+v err=%v", p, err)
	}
	if _, err := m.Lookup(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup missing: expected ErrNotFound, got %v", err)
	}

	emails, err := m.EmailsByIDs(ctx, []string{"u1", "u2", "missing"})
	if err != nil {
		t.Fatalf("EmailsByIDs: %v", err)
	}
	if len(emails) != 2 || emails["u2"] != "two@example.com" {
		t.Fatalf("EmailsByIDs: %v", emails)
	}
}

func TestMemoryAddReplacesByID(t *testing.T) {
	m := NewMemory()
	m.Add(Principal{ID: "u1", Email: "old@example.com"})
	m.Add(Principal{ID: "u1", Email: "new@example.com"})
	ctx := context.Background()

	if _, err := m.ResolveByEmail(ctx, "old@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale email still resolves: %v", err)
	}
	id, err := m.ResolveByEmail(ctx, "new@example.com")
	if err != nil || id != "u1" {
		t.Fatalf("ResolveByEmail: id=%q err=%v", id, err)
	}
}
