package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
	"github.com/ericfisherdev/clubsync/internal/observability"
)

// DefaultRefreshMargin is how long before expiry a token is treated as expired.
const DefaultRefreshMargin = 60 * time.Second

// TokenManager keeps members' Strava access tokens valid. Refresh-then-write
// is serialized per user, so a manual sync racing the sweep cannot spend a
// rotating refresh token twice.
type TokenManager struct {
	creds   driven.CredentialStore
	members driven.MemberStore
	oauth   driven.StravaOAuth
	margin  time.Duration
	now     func() time.Time
	locks   userLocks
}

// NewTokenManager creates a TokenManager. A non-positive margin uses
// DefaultRefreshMargin; a nil now uses time.Now.
func NewTokenManager(
	creds driven.CredentialStore,
	members driven.MemberStore,
	oauth driven.StravaOAuth,
	margin time.Duration,
	now func() time.Time,
) *TokenManager {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		creds:   creds,
		members: members,
		oauth:   oauth,
		margin:  margin,
		now:     now,
		locks:   userLocks{m: make(map[string]chan struct{})},
	}
}

// EnsureValidToken returns an access token for userID that is valid for at
// least the refresh margin, refreshing and persisting a new pair if needed.
func (m *TokenManager) EnsureValidToken(ctx context.Context, userID string) (string, error) {
	cred, err := m.ensure(ctx, userID)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// ForceRefresh refreshes regardless of expiry. rejected is the access token
// the provider just refused; if another caller already replaced it, the
// stored token is returned without a second refresh.
func (m *TokenManager) ForceRefresh(ctx context.Context, userID, rejected string) (string, error) {
	unlock, err := m.locks.lock(ctx, userID)
	if err != nil {
		return "", err
	}
	defer unlock()

	cred, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred.AccessToken != rejected && !cred.NeedsRefresh(m.now(), m.margin) {
		return cred.AccessToken, nil
	}

	refreshed, err := m.refreshLocked(ctx, *cred)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// RefreshNow refreshes userID's token pair even if it is still valid and
// returns the new expiry.
func (m *TokenManager) RefreshNow(ctx context.Context, userID string) (time.Time, error) {
	unlock, err := m.locks.lock(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	defer unlock()

	cred, err := m.load(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	refreshed, err := m.refreshLocked(ctx, *cred)
	if err != nil {
		return time.Time{}, err
	}
	return refreshed.Expiry(), nil
}

func (m *TokenManager) ensure(ctx context.Context, userID string) (*model.Credential, error) {
	cred, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cred.NeedsRefresh(m.now(), m.margin) {
		return cred, nil
	}

	unlock, err := m.locks.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another caller may have refreshed while we waited for the lock.
	cred, err = m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cred.NeedsRefresh(m.now(), m.margin) {
		return cred, nil
	}

	return m.refreshLocked(ctx, *cred)
}

// refreshLocked exchanges the stored refresh token and persists the whole new
// pair. The caller must hold the user's lock.
func (m *TokenManager) refreshLocked(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	bundle, err := m.oauth.Refresh(ctx, cred.RefreshToken)
	observability.ObserveTokenRefresh(err == nil)
	if err != nil {
		return nil, fmt.Errorf("refresh token for %s: %w", cred.UserID, err)
	}

	next := model.Credential{
		UserID:            cred.UserID,
		ProviderAthleteID: cred.ProviderAthleteID,
		AccessToken:       bundle.AccessToken,
		RefreshToken:      bundle.RefreshToken,
		ExpiresAt:         bundle.ExpiresAt,
	}
	if err := m.creds.Upsert(ctx, next); err != nil {
		// The old refresh token may already be revoked by the provider.
		slog.Error("refreshed token could not be stored", "user_id", cred.UserID, "error", err)
		return nil, fmt.Errorf("%w: store refreshed token for %s: %w", ErrPersistence, cred.UserID, err)
	}

	slog.Info("strava token refreshed", "user_id", cred.UserID, "expires_at", next.Expiry())
	return &next, nil
}

func (m *TokenManager) load(ctx context.Context, userID string) (*model.Credential, error) {
	cred, err := m.creds.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load credential for %s: %w", ErrPersistence, userID, err)
	}
	if cred == nil || cred.AccessToken == "" || cred.RefreshToken == "" {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNoCredential)
	}
	return cred, nil
}

// Connect completes the OAuth flow for userID: exchanges code, links the
// athlete to the member, and stores the credential.
func (m *TokenManager) Connect(ctx context.Context, userID, code, redirectURI string) (*model.TokenBundle, error) {
	unlock, err := m.locks.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	bundle, err := m.oauth.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("connect strava for %s: %w", userID, err)
	}

	if err := m.members.LinkAthlete(ctx, userID, bundle.ProviderAthleteID, bundle.AthleteName); err != nil {
		return nil, fmt.Errorf("%w: link athlete for %s: %w", ErrPersistence, userID, err)
	}

	cred := model.Credential{
		UserID:            userID,
		ProviderAthleteID: bundle.ProviderAthleteID,
		AccessToken:       bundle.AccessToken,
		RefreshToken:      bundle.RefreshToken,
		ExpiresAt:         bundle.ExpiresAt,
	}
	if err := m.creds.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: store credential for %s: %w", ErrPersistence, userID, err)
	}

	slog.Info("strava connected", "user_id", userID, "athlete_id", bundle.ProviderAthleteID)
	return bundle, nil
}

// ConnectionStatus reports whether userID can be synced, refreshing an
// expired token on the way. A rejected refresh means the member must reconnect.
func (m *TokenManager) ConnectionStatus(ctx context.Context, userID string) (model.ConnectionStatus, error) {
	cred, err := m.ensure(ctx, userID)
	switch {
	case errors.Is(err, ErrNoCredential):
		return model.ConnectionStatus{}, nil
	case errors.Is(err, driven.ErrRefreshFailed):
		return model.ConnectionStatus{Connected: true, NeedsReauth: true}, nil
	case err != nil:
		return model.ConnectionStatus{}, err
	}

	expiresAt := cred.Expiry()
	return model.ConnectionStatus{Connected: true, TokenValid: true, ExpiresAt: &expiresAt}, nil
}

// userLocks is a keyed mutex whose Lock honors context cancellation.
type userLocks struct {
	mu sync.Mutex
	m  map[string]chan struct{}
}

func (l *userLocks) lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.m[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.m[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
