package vault

import (
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const derivedKeySize = 32

// Keyring derives per-owner symmetric keys from a single service master
// secret. Derivation is deterministic: the same owner id always yields the
// same key, so shared secrets stay decryptable without key exchange.
type Keyring struct {
	master []byte
}

// NewKeyring validates the master secret and returns a Keyring.
func NewKeyring(master []byte) (*Keyring, error) {
	if len(master) < 16 {
		return nil, errors.New("vault: master secret must be at least 16 bytes")
	}
	k := &Keyring{master: make([]byte, len(master))}
	copy(k.master, master)
	return k, nil
}

// DeriveKey returns the 32-byte encryption key scoped to ownerID.
func (k *Keyring) DeriveKey(ownerID string) ([]byte, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrInvalidInput
	}
	r := hkdf.New(sha256.New, k.master, nil, []byte("credential-key:"+ownerID))
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
