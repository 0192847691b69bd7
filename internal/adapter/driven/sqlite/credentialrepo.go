package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of driven.CredentialStore.
// Access and refresh tokens are sealed with AES-256-GCM before they are written.
type CredentialRepo struct {
	db   *DB
	aead cipher.AEAD // nil when no key was configured.
}

// NewCredentialRepo creates a CredentialRepo. key must be 32 bytes; a nil key
// yields a repo whose operations all return driven.ErrEncryptionKeyNotSet.
func NewCredentialRepo(db *DB, key []byte) (*CredentialRepo, error) {
	repo := &CredentialRepo{db: db}
	if key == nil {
		return repo, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create credential cipher: %w", err)
	}
	repo.aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create credential gcm: %w", err)
	}
	return repo, nil
}

// Get returns the decrypted credential for userID, or (nil, nil) when none exists.
func (r *CredentialRepo) Get(ctx context.Context, userID string) (*model.Credential, error) {
	if r.aead == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `
		SELECT user_id, athlete_id, access_token, refresh_token, expires_at, updated_at
		FROM strava_credentials WHERE user_id = ?`

	var (
		cred                 model.Credential
		sealedAccess, sealed string
		updatedAt            string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(
		&cred.UserID, &cred.ProviderAthleteID, &sealedAccess, &sealed, &cred.ExpiresAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for %s: %w", userID, err)
	}

	if cred.AccessToken, err = r.open(sealedAccess); err != nil {
		return nil, fmt.Errorf("decrypt access token for %s: %w", userID, err)
	}
	if cred.RefreshToken, err = r.open(sealed); err != nil {
		return nil, fmt.Errorf("decrypt refresh token for %s: %w", userID, err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", userID, err)
	}

	return &cred, nil
}

// Upsert writes cred in a single statement, replacing both tokens together.
// An empty ProviderAthleteID keeps the stored athlete id.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.Credential) error {
	if r.aead == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	sealedAccess, err := r.seal(cred.AccessToken)
	if err != nil {
		return err
	}
	sealedRefresh, err := r.seal(cred.RefreshToken)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO strava_credentials (user_id, athlete_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			athlete_id    = CASE WHEN excluded.athlete_id = '' THEN strava_credentials.athlete_id ELSE excluded.athlete_id END,
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			updated_at    = CURRENT_TIMESTAMP`

	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.UserID, cred.ProviderAthleteID, sealedAccess, sealedRefresh, cred.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert credential for %s: %w", cred.UserID, err)
	}
	return nil
}

// seal encrypts plaintext and returns base64(nonce || ciphertext || tag).
func (r *CredentialRepo) seal(plaintext string) (string, error) {
	nonce := make([]byte, r.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := r.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (r *CredentialRepo) open(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	nonceSize := r.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := r.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(plaintext), nil
}
