package vault

import "context"

// Store describes persistence operations required by the vault core.
// Implementations return ErrNotFound for unknown ids and must enforce the
// uniqueness of (credential_id, grantee_id) pairs — that constraint, not
// client-side locking, is what makes concurrent duplicate grants safe.
type Store interface {
	CreateCredential(ctx context.Context, c *Credential) error
	Credential(ctx context.Context, id string) (*Credential, error)
	UpdateCredential(ctx context.Context, c *Credential) error
	// DeleteCredential removes the record and every grant referencing it.
	DeleteCredential(ctx context.Context, id string) error
	CredentialsByOwner(ctx context.Context, ownerID string) ([]*Credential, error)

	// CreateGrant inserts the grant unless one already exists for the same
	// (credential_id, grantee_id) pair. It reports whether a row was created;
	// a duplicate is not an error.
	CreateGrant(ctx context.Context, g *ShareGrant) (created bool, err error)
	Grant(ctx context.Context, id string) (*ShareGrant, error)
	// DeleteGrant removes the grant unconditionally. Ownership checks belong
	// to the caller: both owner-driven revokes and grantee-driven
	// unsubscribes are legitimate.
	DeleteGrant(ctx context.Context, id string) error
	GrantsForCredential(ctx context.Context, credentialID string) ([]*ShareGrant, error)
	GrantsForGrantee(ctx context.Context, granteeID string) ([]*ShareGrant, error)
}
