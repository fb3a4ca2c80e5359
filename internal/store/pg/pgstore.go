// Package pg implements the vault persistence and principal directory over
// PostgreSQL using database/sql with the pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"futeurvault.org/internal/directory"
	"futeurvault.org/internal/ids"
	"futeurvault.org/internal/vault"
)

type Store struct {
	db *sql.DB
}

var _ vault.Store = (*Store)(nil)

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) CreateCredential(ctx context.Context, c *vault.Credential) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into credentials(id, owner_id, title, secret_username, secret_password, url, category, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.OwnerID, c.Title, c.SecretUsername, c.SecretPassword, c.URL, c.Category, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Store) Credential(ctx context.Context, id string) (*vault.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, owner_id, title, secret_username, secret_password, url, category, created_at, updated_at
		from credentials where id=$1
	`, id)
	return scanCredential(row)
}

func (s *Store) UpdateCredential(ctx context.Context, c *vault.Credential) error {
	res, err := s.db.ExecContext(ctx, `
		update credentials
		set title=$2, secret_username=$3, secret_password=$4, url=$5, category=$6, updated_at=$7
		where id=$1
	`, c.ID, c.Title, c.SecretUsername, c.SecretPassword, c.URL, c.Category, c.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	// share_grants rows go with the credential via on delete cascade.
	res, err := s.db.ExecContext(ctx, `delete from credentials where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) CredentialsByOwner(ctx context.Context, ownerID string) ([]*vault.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, owner_id, title, secret_username, secret_password, url, category, created_at, updated_at
		from credentials where owner_id=$1 order by updated_at desc
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*vault.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateGrant(ctx context.Context, g *vault.ShareGrant) (bool, error) {
	if g.ID == "" {
		g.ID = ids.New()
	}
	// The unique index on (credential_id, grantee_id) is the serialization
	// point for concurrent duplicate grants.
	res, err := s.db.ExecContext(ctx, `
		insert into share_grants(id, credential_id, owner_id, grantee_id, created_at)
		values ($1,$2,$3,$4,$5)
		on conflict (credential_id, grantee_id) do nothing
	`, g.ID, g.CredentialID, g.OwnerID, g.GranteeID, g.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Grant(ctx context.Context, id string) (*vault.ShareGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, credential_id, owner_id, grantee_id, created_at
		from share_grants where id=$1
	`, id)
	var g vault.ShareGrant
	if err := row.Scan(&g.ID, &g.CredentialID, &g.OwnerID, &g.GranteeID, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vault.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) DeleteGrant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from share_grants where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) GrantsForCredential(ctx context.Context, credentialID string) ([]*vault.ShareGrant, error) {
	return s.grantsWhere(ctx, `credential_id=$1`, credentialID)
}

func (s *Store) GrantsForGrantee(ctx context.Context, granteeID string) ([]*vault.ShareGrant, error) {
	return s.grantsWhere(ctx, `grantee_id=$1`, granteeID)
}

func (s *Store) grantsWhere(ctx context.Context, cond, arg string) ([]*vault.ShareGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, credential_id, owner_id, grantee_id, created_at
		from share_grants where `+cond+` order by created_at asc
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*vault.ShareGrant
	for rows.Next() {
		var g vault.ShareGrant
		if err := rows.Scan(&g.ID, &g.CredentialID, &g.OwnerID, &g.GranteeID, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*vault.Credential, error) {
	var c vault.Credential
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.SecretUsername, &c.SecretPassword,
		&c.URL, &c.Category, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vault.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return vault.ErrNotFound
	}
	return nil
}

// Directory resolves principals against the identity mirror table kept in
// sync with the Authentication Service.
type Directory struct {
	db *sql.DB
}

var _ directory.Directory = (*Directory)(nil)

// NewDirectory wraps an existing handle.
func NewDirectory(db *sql.DB) *Directory { return &Directory{db: db} }

func (d *Directory) ResolveByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx, `select id from principals where email=$1`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", directory.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (d *Directory) Lookup(ctx context.Context, id string) (directory.Principal, error) {
	var p directory.Principal
	err := d.db.QueryRowContext(ctx,
		`select id, email, coalesce(display_name,'') from principals where id=$1`, id,
	).Scan(&p.ID, &p.Email, &p.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Principal{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Principal{}, err
	}
	return p, nil
}

func (d *Directory) EmailsByIDs(ctx context.Context, principalIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(principalIDs))
	for _, id := range principalIDs {
		var email string
		err := d.db.QueryRowContext(ctx, `select email from principals where id=$1`, id).Scan(&email)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = email
	}
	return out, nil
}
