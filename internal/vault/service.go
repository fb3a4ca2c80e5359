package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"futeurvault.org/internal/audit"
	"futeurvault.org/internal/directory"
	"futeurvault.org/internal/notify"
	"futeurvault.org/internal/obs"
)

const defaultNotifyTimeout = 15 * time.Second

// Service provides encrypted credential storage, sharing and access
// resolution. Encryption happens here, before records cross into the Store;
// the persistence layer never sees plaintext secrets.
type Service struct {
	store Store
	keys  *Keyring
	dir   directory.Directory
	relay notify.Relay
	now   func() time.Time

	notifyTimeout time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRelay sets the share-notification relay.
func WithRelay(relay notify.Relay) ServiceOption {
	return func(s *Service) {
		if relay != nil {
			s.relay = relay
		}
	}
}

// WithNotifyTimeout bounds the fire-and-forget notification delivery.
func WithNotifyTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// NewService constructs the vault service.
func NewService(store Store, keys *Keyring, dir directory.Directory, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		keys:          keys,
		dir:           dir,
		relay:         notify.Noop{},
		now:           time.Now,
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCredential encrypts the secret fields with the owner's derived key
// and persists the record. The owner is fixed at creation and never changes.
func (s *Service) CreateCredential(ctx context.Context, ownerID string, in NewCredential) (Credential, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Credential{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.Title) == "" || in.Username == "" || in.Password == "" {
		return Credential{}, ErrInvalidInput
	}
	key, err := s.keys.DeriveKey(ownerID)
	if err != nil {
		return Credential{}, err
	}
	encUser, err := Encrypt(in.Username, key)
	if err != nil {
		return Credential{}, err
	}
	encPass, err := Encrypt(in.Password, key)
	if err != nil {
		return Credential{}, err
	}

	now := s.now().UTC()
	cred := Credential{
		OwnerID:        ownerID,
		Title:          in.Title,
		Category:       in.Category,
		URL:            in.URL,
		SecretUsername: encUser,
		SecretPassword: encPass,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateCredential(ctx, &cred); err != nil {
		return Credential{}, fmt.Errorf("create credential: %w", err)
	}
	return cred, nil
}

// UpdateCredential applies a partial patch. Only the owner may mutate;
// secret fields present in the patch are re-encrypted with the owner's key.
func (s *Service) UpdateCredential(ctx context.Context, requesterID, credentialID string, patch CredentialPatch) error {
	if patch.isEmpty() {
		return ErrInvalidInput
	}
	cred, err := s.store.Credential(ctx, credentialID)
	if err != nil {
		return err
	}
	if cred.OwnerID != requesterID {
		return ErrPermissionDenied
	}

	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return ErrInvalidInput
		}
		cred.Title = *patch.Title
	}
	if patch.Category != nil {
		cred.Category = *patch.Category
	}
	if patch.URL != nil {
		cred.URL = *patch.URL
	}
	if patch.Username != nil || patch.Password != nil {
		key, err := s.keys.DeriveKey(cred.OwnerID)
		if err != nil {
			return err
		}
		if patch.Username != nil {
			enc, err := Encrypt(*patch.Username, key)
			if err != nil {
				return err
			}
			cred.SecretUsername = enc
		}
		if patch.Password != nil {
			enc, err := Encrypt(*patch.Password, key)
			if err != nil {
				return err
			}
			cred.SecretPassword = enc
		}
	}
	cred.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCredential(ctx, cred); err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	return nil
}

// DeleteCredential removes the record and, through the store, every grant
// referencing it.
func (s *Service) DeleteCredential(ctx context.Context, requesterID, credentialID string) error {
	cred, err := s.store.Credential(ctx, credentialID)
	if err != nil {
		return err
	}
	if cred.OwnerID != requesterID {
		return ErrPermissionDenied
	}
	if err := s.store.DeleteCredential(ctx, credentialID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// ResolvePrincipalByEmail validates the address syntactically and resolves
// it against the directory with an exact, case-sensitive match.
func (s *Service) ResolvePrincipalByEmail(ctx context.Context, email string) (string, error) {
	if err := directory.ValidateEmail(email); err != nil {
		return "", err
	}
	return s.dir.ResolveByEmail(ctx, email)
}

// Grant shares a credential with a grantee. Creation is idempotent: an
// existing grant for the same (credential, grantee) pair reports success
// without creating a duplicate. A successful new grant triggers a
// best-effort notification that never affects the returned error.
func (s *Service) Grant(ctx context.Context, ownerID, credentialID, granteeID string) error {
	_, err := s.grant(ctx, ownerID, credentialID, granteeID)
	return err
}

func (s *Service) grant(ctx context.Context, ownerID, credentialID, granteeID string) (created bool, err error) {
	if strings.TrimSpace(granteeID) == "" {
		return false, ErrInvalidInput
	}
	if granteeID == ownerID {
		return false, ErrSelfShare
	}
	cred, err := s.store.Credential(ctx, credentialID)
	if err != nil {
		return false, err
	}
	if cred.OwnerID != ownerID {
		return false, ErrPermissionDenied
	}

	g := ShareGrant{
		CredentialID: credentialID,
		OwnerID:      ownerID,
		GranteeID:    granteeID,
		CreatedAt:    s.now().UTC(),
	}
	created, err = s.store.CreateGrant(ctx, &g)
	if err != nil {
		return false, fmt.Errorf("create grant: %w", err)
	}
	if created {
		obs.ShareGrantsTotal.Inc()
		s.notifyGrantee(ctx, cred, granteeID)
	}
	return created, nil
}

// GrantMany applies Grant to each credential id independently and
// concurrently. Per-item failures are collected, not aborted on; the batch
// is not atomic and partial success is a valid outcome.
func (s *Service) GrantMany(ctx context.Context, ownerID string, credentialIDs []string, granteeID string) (BatchResult, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result BatchResult
	)
	for _, id := range credentialIDs {
		wg.Add(1)
		go func(credentialID string) {
			defer wg.Done()
			created, err := s.grant(ctx, ownerID, credentialID, granteeID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed = append(result.Failed, BatchFailure{
					CredentialID: credentialID,
					Reason:       reasonFor(err),
				})
			case created:
				result.Granted = append(result.Granted, credentialID)
			default:
				result.AlreadyShared = append(result.AlreadyShared, credentialID)
			}
		}(id)
	}
	wg.Wait()

	sort.Strings(result.Granted)
	sort.Strings(result.AlreadyShared)
	sort.Slice(result.Failed, func(i, j int) bool {
		return result.Failed[i].CredentialID < result.Failed[j].CredentialID
	})
	return result, nil
}

// Revoke deletes a grant on behalf of the credential owner.
func (s *Service) Revoke(ctx context.Context, ownerID, grantID string) error {
	g, err := s.store.Grant(ctx, grantID)
	if err != nil {
		return err
	}
	if g.OwnerID != ownerID {
		return ErrPermissionDenied
	}
	return s.store.DeleteGrant(ctx, grantID)
}

// Unsubscribe deletes a grant on behalf of its grantee. The store's delete
// is unconditional; this is the grantee-driven counterpart of Revoke.
func (s *Service) Unsubscribe(ctx context.Context, granteeID, grantID string) error {
	g, err := s.store.Grant(ctx, grantID)
	if err != nil {
		return err
	}
	if g.GranteeID != granteeID {
		return ErrPermissionDenied
	}
	return s.store.DeleteGrant(ctx, grantID)
}

// GrantInfo is a ShareGrant enriched with the grantee's email for
// "shared with" listings.
type GrantInfo struct {
	ShareGrant
	GranteeEmail string `json:"grantee_email,omitempty"`
}

// GrantsFor returns all active grants on a credential, visible to the owner
// only, with grantee emails resolved where the directory knows them.
func (s *Service) GrantsFor(ctx context.Context, requesterID, credentialID string) ([]GrantInfo, error) {
	cred, err := s.store.Credential(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.OwnerID != requesterID {
		return nil, ErrPermissionDenied
	}
	grants, err := s.store.GrantsForCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	granteeIDs := make([]string, 0, len(grants))
	for _, g := range grants {
		granteeIDs = append(granteeIDs, g.GranteeID)
	}
	emails, err := s.dir.EmailsByIDs(ctx, granteeIDs)
	if err != nil {
		// Grants are still meaningful without resolved emails.
		emails = nil
	}

	out := make([]GrantInfo, 0, len(grants))
	for _, g := range grants {
		out = append(out, GrantInfo{ShareGrant: *g, GranteeEmail: emails[g.GranteeID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListVisible returns the principal's visible credential set: owned records
// decrypted with the principal's own key plus granted records decrypted
// with each owner's key. A record whose ciphertext cannot be opened is
// returned with sentinel secret fields instead of failing the listing.
// Results are ordered by updated_at descending.
func (s *Service) ListVisible(ctx context.Context, principalID string) ([]DecryptedCredential, error) {
	if strings.TrimSpace(principalID) == "" {
		return nil, ErrInvalidInput
	}
	owned, err := s.store.CredentialsByOwner(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list owned: %w", err)
	}
	grants, err := s.store.GrantsForGrantee(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}

	out := make([]DecryptedCredential, 0, len(owned)+len(grants))
	for _, c := range owned {
		out = append(out, s.open(c, false))
	}
	for _, g := range grants {
		cred, err := s.store.Credential(ctx, g.CredentialID)
		if errors.Is(err, ErrNotFound) {
			// Grant outlived its credential; cascade should prevent this.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load shared credential: %w", err)
		}
		out = append(out, s.open(cred, true))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// open decrypts a credential with its owner's key. Shared records use the
// owner's key, never the reader's: key ownership does not transfer with
// access.
func (s *Service) open(c *Credential, shared bool) DecryptedCredential {
	d := DecryptedCredential{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Title:     c.Title,
		Category:  c.Category,
		URL:       c.URL,
		IsShared:  shared,
		UpdatedAt: c.UpdatedAt,
	}
	key, err := s.keys.DeriveKey(c.OwnerID)
	if err != nil {
		return markDecryptFailed(d)
	}
	username, errU := Decrypt(c.SecretUsername, key)
	password, errP := Decrypt(c.SecretPassword, key)
	if errU != nil || errP != nil {
		return markDecryptFailed(d)
	}
	d.Username = username
	d.Password = password
	return d
}

func markDecryptFailed(d DecryptedCredential) DecryptedCredential {
	obs.DecryptFailuresTotal.Inc()
	d.DecryptError = true
	d.Username = DecryptFailedSentinel
	d.Password = DecryptFailedSentinel
	return d
}

// notifyGrantee fires the share notice without joining it into the caller's
// outcome. Failures are logged and dropped.
func (s *Service) notifyGrantee(ctx context.Context, cred *Credential, granteeID string) {
	grantee, err := s.dir.Lookup(ctx, granteeID)
	if err != nil {
		return
	}
	fromName := cred.OwnerID
	if owner, err := s.dir.Lookup(ctx, cred.OwnerID); err == nil {
		if owner.DisplayName != "" {
			fromName = owner.DisplayName
		} else if owner.Email != "" {
			fromName = owner.Email
		}
	}
	n := notify.Notification{
		ToEmail:         grantee.Email,
		FromDisplayName: fromName,
		CredentialTitle: cred.Title,
	}
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.relay.Notify(nctx, n); err != nil {
			_ = audit.LogEvent(nctx, "vault.share.notify_failed", map[string]any{
				"credential_id": cred.ID,
				"error":         err.Error(),
			})
		}
	}()
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrSelfShare):
		return "self_share"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "storage_error"
	}
}
