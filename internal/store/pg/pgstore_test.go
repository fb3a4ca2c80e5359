package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"futeurvault.org/internal/directory"
	"futeurvault.org/internal/vault"
)

func TestCreateGrantIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db)
	ctx := context.Background()

	// First insert creates a row.
	mock.ExpectExec("insert into share_grants").
		WithArgs(sqlmock.AnyArg(), "cred-1", "owner-1", "grantee-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Duplicate hits the conflict clause and affects zero rows.
	mock.ExpectExec("insert into share_grants").
		WithArgs(sqlmock.AnyArg(), "cred-1", "owner-1", "grantee-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	g := vault.ShareGrant{CredentialID: "cred-1", OwnerID: "owner-1", GranteeID: "grantee-1", CreatedAt: time.Now().UTC()}
	created, err := store.CreateGrant(ctx, &g)
	if err != nil {
		t.Fatalf("CreateGrant: %v", err)
	}
	if !created {
		t.Fatal("expected first grant to be created")
	}
	if g.ID == "" {
		t.Fatal("expected grant id to be assigned")
	}

	dup := vault.ShareGrant{CredentialID: "cred-1", OwnerID: "owner-1", GranteeID: "grantee-1", CreatedAt: time.Now().UTC()}
	created, err = store.CreateGrant(ctx, &dup)
	if err != nil {
		t.Fatalf("duplicate CreateGrant: %v", err)
	}
	if created {
		t.Fatal("expected duplicate grant to report created=false")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCredentialNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	mock.ExpectQuery("select id, owner_id, title").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Credential(context.Background(), "missing"); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db)
	now := time.Now().UTC()

	mock.ExpectExec("insert into credentials").
		WithArgs(sqlmock.AnyArg(), "owner-1", "GitHub", []byte{1}, []byte{2}, "https://github.com", "Development", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cred := vault.Credential{
		OwnerID:        "owner-1",
		Title:          "GitHub",
		SecretUsername: []byte{1},
		SecretPassword: []byte{2},
		URL:            "https://github.com",
		Category:       "Development",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.CreateCredential(context.Background(), &cred); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "secret_username", "secret_password", "url", "category", "created_at", "updated_at"}).
		AddRow(cred.ID, "owner-1", "GitHub", []byte{1}, []byte{2}, "https://github.com", "Development", now, now)
	mock.ExpectQuery("select id, owner_id, title").WithArgs(cred.ID).WillReturnRows(rows)

	got, err := store.Credential(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if got.Title != "GitHub" || got.OwnerID != "owner-1" {
		t.Fatalf("unexpected credential: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateCredentialMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	mock.ExpectExec("update credentials").
		WithArgs("missing", "t", sqlmock.AnyArg(), sqlmock.AnyArg(), "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	cred := vault.Credential{ID: "missing", Title: "t", UpdatedAt: time.Now().UTC()}
	if err := store.UpdateCredential(context.Background(), &cred); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectoryResolveByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	dir := NewDirectory(db)

	mock.ExpectQuery("select id from principals").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-alice"))
	mock.ExpectQuery("select id from principals").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, err := dir.ResolveByEmail(context.Background(), "alice@example.com")
	if err != nil || id != "user-alice" {
		t.Fatalf("ResolveByEmail: id=%q err=%v", id, err)
	}
	if _, err := dir.ResolveByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected directory.ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDirectoryEmailsByIDsSkipsUnknown(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	dir := NewDirectory(db)

	mock.ExpectQuery("select email from principals").
		WithArgs("user-a").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("a@example.com"))
	mock.ExpectQuery("select email from principals").
		WithArgs("user-gone").
		WillReturnRows(sqlmock.NewRows([]string{"email"}))

	emails, err := dir.EmailsByIDs(context.Background(), []string{"user-a", "user-gone"})
	if err != nil {
		t.Fatalf("EmailsByIDs: %v", err)
	}
	if len(emails) != 1 || emails["user-a"] != "a@example.com" {
		t.Fatalf("unexpected emails: %v", emails)
	}
}
