package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// CLUBSYNC_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set CLUBSYNC_SECRET_KEY")

// CredentialStore defines the driven port for per-member OAuth credentials.
// The adapter encrypts tokens at rest; this interface works with plaintext.
type CredentialStore interface {
	// Get returns the credential for userID, or (nil, nil) when none is stored.
	Get(ctx context.Context, userID string) (*model.Credential, error)

	// Upsert stores cred, replacing every field of an existing credential.
	Upsert(ctx context.Context, cred model.Credential) error
}
