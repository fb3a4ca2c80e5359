package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"futeurvault.org/internal/audit"
	"futeurvault.org/internal/auth"
	"futeurvault.org/internal/directory"
	"futeurvault.org/internal/vault"
)

// VaultService is the slice of the vault core this layer invokes.
type VaultService interface {
	CreateCredential(ctx context.Context, ownerID string, in vault.NewCredential) (vault.Credential, error)
	UpdateCredential(ctx context.Context, requesterID, credentialID string, patch vault.CredentialPatch) error
	DeleteCredential(ctx context.Context, requesterID, credentialID string) error
	ResolvePrincipalByEmail(ctx context.Context, email string) (string, error)
	GrantMany(ctx context.Context, ownerID string, credentialIDs []string, granteeID string) (vault.BatchResult, error)
	Revoke(ctx context.Context, ownerID, grantID string) error
	Unsubscribe(ctx context.Context, granteeID, grantID string) error
	GrantsFor(ctx context.Context, requesterID, credentialID string) ([]vault.GrantInfo, error)
	ListVisible(ctx context.Context, principalID string) ([]vault.DecryptedCredential, error)
}

type createCredentialRequest struct {
	Title    string `json:"title"`
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

type shareRequest struct {
	Email         string   `json:"email"`
	CredentialIDs []string `json:"credential_ids"`
}

type listCredentialsResponse struct {
	Items []vault.DecryptedCredential `json:"items"`
}

type listGrantsResponse struct {
	Items []vault.GrantInfo `json:"items"`
}

func (a *API) handleCredentialsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createCredential(w, r)
	case http.MethodGet:
		a.listCredentials(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleCredentialResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/credentials/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/shares") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/shares"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "credential not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listGrants(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		a.updateCredential(w, r, path)
	case http.MethodDelete:
		a.deleteCredential(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleSharesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.share(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleShareResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/shares/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodDelete:
		a.removeShare(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodDelete)
	}
}

func (a *API) createCredential(w http.ResponseWriter, r *http.Request) {
	principalID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req createCredentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, r, http.StatusBadRequest, "title is required")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	cred, err := a.vault.CreateCredential(r.Context(), principalID, vault.NewCredential{
		Title:    req.Title,
		Username: req.Username,
		Password: req.Password,
		URL:      req.URL,
		Category: req.Category,
	})
	if err != nil {
		handleVaultError(w, r, err)
		return
	}

	a.audit(r.Context(), "vault.credential.create", map[string]any{
		"credential_id": cred.ID,
	})

	w.Header().Set("Location", "/v1/credentials/"+cred.ID)
	writeJSON(w, http.StatusCreated, cred)
}

func (a *API) listCredentials(w http.ResponseWriter, r *http.Request) {
	principalID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	items, err := a.vault.ListVisible(r.Context(), principalID)
	if err != nil {
		handleVaultError(w, r, err)
		return
	}
	items = filterCredentials(items, r.URL.Query().Get("category"), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, listCredentialsResponse{Items: items})
}

// filterCredentials narrows a visible set by category and a metadata query.
// Filtering runs on plaintext metadata only, never on secret fields.
func filterCredentials(items []vault.DecryptedCredential, category, q string) []vault.DecryptedCredential {
	if category == "" && q == "" {
		return items
	}
	q = strings.ToLower(q)
	out := items[:0]
	for _, item := range items {
		if category != "" && item.Category != category {
			continue
		}
		if q != "" {
			haystack := strings.ToLower(item.Title + " " + item.URL + " " + item.Category)
			if !strings.Contains(haystack, q) {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

func (a *API) updateCredential(w http.ResponseWriter, r *http.Request, id string) {
	principalID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var patch vault.CredentialPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.vault.UpdateCredential(r.Context(), principalID, id, patch); err != nil {
		handleVaultError(w, r, err)
		return
	}
	a.audit(r.Context(), "vault.credential.update", map[string]any{
		"credential_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteCredential(w http.ResponseWriter, r *http.Request, id string) {
	principalID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := a.vault.DeleteCredential(r.Context(), principalID, id); err != nil {
		handleVaultError(w, r, err)
		return
	}
	a.audit(r.Context(), "vault.credential.delete", map[string]any{
		"credential_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listGrants(w http.ResponseWriter, r *http.Request, credentialID string) {
	principalID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	items, err := a.vault.GrantsFor(r.Context(), principalID, credentialID)
	if err != nil {
		handleVaultError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listGrantsResponse{Items: items})
}

func (a *API) share(w http.ResponseWriter, r *http.Request) {
	principalID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.CredentialIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "credential_ids is required")
		return
	}

	granteeID, err := a.vault.ResolvePrincipalByEmail(r.Context(), req.Email)
	if err != nil {
		handleVaultError(w, r, err)
		return
	}

	result, err := a.vault.GrantMany(r.Context(), principalID, req.CredentialIDs, granteeID)
	if err != nil {
		handleVaultError(w, r, err)
		return
	}

	a.audit(r.Context(), "vault.share.grant", map[string]any{
		"grantee_id":     granteeID,
		"granted":        result.Granted,
		"already_shared": result.AlreadyShared,
		"failed":         len(result.Failed),
	})

	// A partially failed batch is a valid, reportable outcome.
	status := http.StatusOK
	if !result.OK() && len(result.Granted) == 0 && len(result.AlreadyShared) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (a *API) removeShare(w http.ResponseWriter, r *http.Request, grantID string) {
	principalID, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	event := "vault.share.revoke"
	err := a.vault.Revoke(r.Context(), principalID, grantID)
	if errors.Is(err, vault.ErrPermissionDenied) {
		// Not the owner; a grantee may still remove their own access.
		event = "vault.share.unsubscribe"
		err = a.vault.Unsubscribe(r.Context(), principalID, grantID)
	}
	if err != nil {
		handleVaultError(w, r, err)
		return
	}
	a.audit(r.Context(), event, map[string]any{
		"grant_id": grantID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	_ = audit.LogEvent(ctx, event, fields)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleVaultError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, vault.ErrInvalidInput), errors.Is(err, directory.ErrInvalidEmail):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, vault.ErrSelfShare):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, vault.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
