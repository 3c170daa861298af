package secrets

import (
	stderrors "errors"

	keyring "github.com/zalando/go-keyring"

	"github.com/sheetvault/sheetvault/internal/errors"
)

// service is the keyring service name all entries are filed under.
const service = "sheetvault"

// Keyring backs the secret store with the OS-native secret facility
// (Secret Service on Linux, Keychain on macOS, Credential Manager on
// Windows).
type Keyring struct {
	service string
}

// NewKeyring creates a keyring-backed store.
func NewKeyring() *Keyring {
	return &Keyring{service: service}
}

func (k *Keyring) Save(account string, blob []byte) error {
	if err := keyring.Set(k.service, account, string(blob)); err != nil {
		return &errors.ErrStoreUnavailable{Err: err}
	}
	return nil
}

func (k *Keyring) Load(account string) ([]byte, error) {
	secret, err := keyring.Get(k.service, account)
	if err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return nil, &errors.ErrSecretNotFound{Account: account}
		}
		return nil, &errors.ErrStoreUnavailable{Err: err}
	}
	return []byte(secret), nil
}

func (k *Keyring) Delete(account string) error {
	if err := keyring.Delete(k.service, account); err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return &errors.ErrSecretNotFound{Account: account}
		}
		return &errors.ErrStoreUnavailable{Err: err}
	}
	return nil
}

var _ Store = (*Keyring)(nil)
