package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// PASSKEYWALLET_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set PASSKEYWALLET_SECRET_KEY")

// CredentialStore defines the driven port for passkey credential persistence.
// Every operation is keyed by the opaque identity key. At most one credential
// exists per key. Adapters encrypt key material at rest; this interface
// operates on plaintext values at the domain boundary.
//
// Implementations must be safe for concurrent use across distinct identity
// keys. Linearizing writes within one key is the caller's job.
type CredentialStore interface {
	// Put stores cred under cred.IdentityKey, replacing any prior record.
	Put(ctx context.Context, cred model.Credential) error

	// Get returns the credential for identityKey, or (nil, nil) if none exists.
	Get(ctx context.Context, identityKey string) (*model.Credential, error)

	// Delete removes the credential for identityKey and reports whether one existed.
	Delete(ctx context.Context, identityKey string) (bool, error)

	// List returns zero or one credential for identityKey, never nil.
	List(ctx context.Context, identityKey string) ([]model.Credential, error)

	// Count returns the number of stored credentials.
	Count(ctx context.Context) (int, error)
}
