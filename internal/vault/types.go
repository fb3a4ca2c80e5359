package vault

import (
	"errors"
	"time"
)

// Credential is a stored secret record owned by exactly one principal.
// SecretUsername and SecretPassword hold ciphertext produced with the
// owner's derived key; plaintext never reaches the persistence layer.
type Credential struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Category       string    `json:"category"`
	URL            string    `json:"url,omitempty"`
	SecretUsername []byte    `json:"-"`
	SecretPassword []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ShareGrant gives a non-owner principal read access to one credential.
// It is a pure capability token: created and revoked, never mutated.
type ShareGrant struct {
	ID           string    `json:"id"`
	CredentialID string    `json:"credential_id"`
	OwnerID      string    `json:"owner_id"`
	GranteeID    string    `json:"grantee_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewCredential carries the plaintext input for credential creation.
type NewCredential struct {
	Title    string `json:"title"`
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// CredentialPatch is a partial update. Nil fields are left untouched;
// Username and Password are re-encrypted with the owner's key when set.
type CredentialPatch struct {
	Title    *string `json:"title,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	URL      *string `json:"url,omitempty"`
	Category *string `json:"category,omitempty"`
}

func (p CredentialPatch) isEmpty() bool {
	return p.Title == nil && p.Username == nil && p.Password == nil && p.URL == nil && p.Category == nil
}

// DecryptedCredential is a credential at the point of delivery to an
// authorized reader. DecryptError marks records whose ciphertext could not
// be opened; their secret fields carry DecryptFailedSentinel instead.
type DecryptedCredential struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	URL          string    `json:"url,omitempty"`
	Category     string    `json:"category"`
	IsShared     bool      `json:"is_shared"`
	DecryptError bool      `json:"decrypt_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DecryptFailedSentinel replaces secret fields when decryption fails.
const DecryptFailedSentinel = "<unable to decrypt>"

// BatchFailure reports a single failed item of a multi-credential share.
type BatchFailure struct {
	CredentialID string `json:"credential_id"`
	Reason       string `json:"reason"`
}

// BatchResult is the outcome of GrantMany. The batch is not atomic: a mix
// of granted and failed ids is a valid, reportable outcome.
type BatchResult struct {
	Granted       []string       `json:"granted"`
	AlreadyShared []string       `json:"already_shared"`
	Failed        []BatchFailure `json:"failed,omitempty"`
}

// OK reports whether every requested id ended up shared.
func (r BatchResult) OK() bool { return len(r.Failed) == 0 }

var (
	ErrNotFound         = errors.New("vault: not found")
	ErrPermissionDenied = errors.New("vault: permission denied")
	ErrSelfShare        = errors.New("vault: cannot share with yourself")
	ErrInvalidInput     = errors.New("vault: invalid input")
	ErrDecrypt          = errors.New("vault: decryption failed")
)
