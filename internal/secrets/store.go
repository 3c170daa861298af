package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	stderrors "errors"

	"github.com/sheetvault/sheetvault/internal/errors"
)

// Store persists opaque secret blobs keyed by account identifier. Load
// distinguishes "never saved" (ErrSecretNotFound) from a backend outage
// (ErrStoreUnavailable) so callers do not mistake a down keyring daemon for
// a logged-out user.
type Store interface {
	Save(account string, blob []byte) error
	Load(account string) ([]byte, error)
	Delete(account string) error
}

// EncryptionKeyAccount is the reserved entry holding the database
// encryption key. It shares the store with per-account credentials but can
// never collide with a real account identifier.
const EncryptionKeyAccount = "_database-encryption-key"

const encryptionKeySize = 32 // AES-256

// EncryptionKey loads the database encryption key, generating and
// persisting a fresh one on first run.
func EncryptionKey(s Store) ([]byte, error) {
	blob, err := s.Load(EncryptionKeyAccount)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(string(blob))
		if decErr != nil {
			return nil, &errors.ErrStoreUnavailable{Err: fmt.Errorf("stored encryption key is malformed: %w", decErr)}
		}
		if len(key) != encryptionKeySize {
			return nil, &errors.ErrStoreUnavailable{Err: fmt.Errorf("stored encryption key has wrong size %d", len(key))}
		}
		return key, nil
	}

	var notFound *errors.ErrSecretNotFound
	if !stderrors.As(err, &notFound) {
		return nil, err
	}

	key := make([]byte, encryptionKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := s.Save(EncryptionKeyAccount, []byte(encoded)); err != nil {
		return nil, err
	}
	return key, nil
}
