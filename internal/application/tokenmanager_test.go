package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/clubsync/internal/application"
	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

var tokenNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func rotatingOAuth() *mockOAuth {
	var n int
	var mu sync.Mutex
	return &mockOAuth{
		refresh: func(refreshToken string) (*model.TokenBundle, error) {
			mu.Lock()
			defer mu.Unlock()
			n++
			return &model.TokenBundle{
				AccessToken:  fmt.Sprintf("access-%d", n),
				RefreshToken: fmt.Sprintf("refresh-%d", n),
				ExpiresAt:    tokenNow.Add(6 * time.Hour).Unix(),
			}, nil
		},
	}
}

func credentialExpiringIn(userID string, d time.Duration) model.Credential {
	return model.Credential{
		UserID:       userID,
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    tokenNow.Add(d).Unix(),
	}
}

func TestEnsureValidToken_RefreshBoundary(t *testing.T) {
	tests := []struct {
		name        string
		expiresIn   time.Duration
		wantRefresh bool
	}{
		{name: "expires in 30s", expiresIn: 30 * time.Second, wantRefresh: true},
		{name: "expires exactly at margin", expiresIn: 60 * time.Second, wantRefresh: true},
		{name: "expires in 61s", expiresIn: 61 * time.Second, wantRefresh: false},
		{name: "expires in 1h", expiresIn: time.Hour, wantRefresh: false},
		{name: "already expired", expiresIn: -time.Hour, wantRefresh: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := newMockCredentialStore(credentialExpiringIn("user-1", tt.expiresIn))
			oauth := rotatingOAuth()
			mgr := application.NewTokenManager(creds, newMockMemberStore(), oauth, 60*time.Second, fixedClock(tokenNow))

			token, err := mgr.EnsureValidToken(context.Background(), "user-1")
			require.NoError(t, err)

			if tt.wantRefresh {
				assert.Equal(t, "access-1", token)
				assert.Equal(t, 1, oauth.calls())
				assert.Equal(t, 1, creds.writeCount())
			} else {
				assert.Equal(t, "access-old", token)
				assert.Equal(t, 0, oauth.calls())
				assert.Equal(t, 0, creds.writeCount())
			}
		})
	}
}

func TestEnsureValidToken_PersistsRotatedRefreshToken(t *testing.T) {
	creds := newMockCredentialStore(model.Credential{
		UserID: "user-1", ProviderAthleteID: "777",
		AccessToken: "access-old", RefreshToken: "refresh-old",
		ExpiresAt: tokenNow.Unix() - 10,
	})
	mgr := application.NewTokenManager(creds, newMockMemberStore(), rotatingOAuth(), 0, fixedClock(tokenNow))

	_, err := mgr.EnsureValidToken(context.Background(), "user-1")
	require.NoError(t, err)

	stored := creds.get("user-1")
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.Equal(t, "777", stored.ProviderAthleteID)
	assert.Equal(t, tokenNow.Add(6*time.Hour).Unix(), stored.ExpiresAt)
}

func TestEnsureValidToken_NoCredential(t *testing.T) {
	mgr := application.NewTokenManager(newMockCredentialStore(), newMockMemberStore(), rotatingOAuth(), 0, fixedClock(tokenNow))

	_, err := mgr.EnsureValidToken(context.Background(), "user-1")
	require.ErrorIs(t, err, application.ErrNoCredential)
	assert.Equal(t, model.ErrorKindNoCredential, application.ErrorKindOf(err))
}

func TestEnsureValidToken_RefreshRejected(t *testing.T) {
	creds := newMockCredentialStore(credentialExpiringIn("user-1", 0))
	oauth := &mockOAuth{refresh: func(string) (*model.TokenBundle, error) {
		return nil, fmt.Errorf("refresh token: %w: status 400", driven.ErrRefreshFailed)
	}}
	mgr := application.NewTokenManager(creds, newMockMemberStore(), oauth, 0, fixedClock(tokenNow))

	_, err := mgr.EnsureValidToken(context.Background(), "user-1")
	require.ErrorIs(t, err, driven.ErrRefreshFailed)
	assert.Equal(t, 0, creds.writeCount())
	assert.Equal(t, "refresh-old", creds.get("user-1").RefreshToken)
}

func TestEnsureValidToken_StoreFailureAfterRefresh(t *testing.T) {
	creds := newMockCredentialStore(credentialExpiringIn("user-1", 0))
	creds.putErr = errors.New("disk full")
	mgr := application.NewTokenManager(creds, newMockMemberStore(), rotatingOAuth(), 0, fixedClock(tokenNow))

	_, err := mgr.EnsureValidToken(context.Background(), "user-1")
	require.ErrorIs(t, err, application.ErrPersistence)
	assert.Equal(t, model.ErrorKindPersistence, application.ErrorKindOf(err))
}

func TestEnsureValidToken_ConcurrentCallersRefreshOnce(t *testing.T) {
	creds := newMockCredentialStore(credentialExpiringIn("user-1", 0))
	oauth := rotatingOAuth()
	mgr := application.NewTokenManager(creds, newMockMemberStore(), oauth, 0, fixedClock(tokenNow))

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := mgr.EnsureValidToken(context.Background(), "user-1")
			assert.NoError(t, err)
			tokens[i] = token
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oauth.calls())
	assert.Equal(t, 1, creds.writeCount())
	for _, token := range tokens {
		assert.Equal(t, "access-1", token)
	}
}

func TestForceRefresh(t *testing.T) {
	creds := newMockCredentialStore(credentialExpiringIn("user-1", time.Hour))
	oauth := rotatingOAuth()
	mgr := application.NewTokenManager(creds, newMockMemberStore(), oauth, 0, fixedClock(tokenNow))
	ctx := context.Background()

	token, err := mgr.ForceRefresh(ctx, "user-1", "access-old")
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	// A second caller holding the old rejected token reuses the new one.
	token, err = mgr.ForceRefresh(ctx, "user-1", "access-old")
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, 1, oauth.calls())
}

func TestRefreshNow(t *testing.T) {
	creds := newMockCredentialStore(credentialExpiringIn("user-1", time.Hour))
	oauth := rotatingOAuth()
	mgr := application.NewTokenManager(creds, newMockMemberStore(), oauth, 0, fixedClock(tokenNow))

	expiry, err := mgr.RefreshNow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, tokenNow.Add(6*time.Hour).Equal(expiry))
	assert.Equal(t, 1, oauth.calls(), "a valid token is still refreshed")
	assert.Equal(t, "refresh-1", creds.get("user-1").RefreshToken)

	_, err = mgr.RefreshNow(context.Background(), "user-2")
	assert.ErrorIs(t, err, application.ErrNoCredential)
}

func TestForceRefresh_CanceledWhileWaiting(t *testing.T) {
	creds := newMockCredentialStore(credentialExpiringIn("user-1", 0))
	release := make(chan struct{})
	started := make(chan struct{})
	oauth := &mockOAuth{refresh: func(string) (*model.TokenBundle, error) {
		close(started)
		<-release
		return &model.TokenBundle{AccessToken: "a", RefreshToken: "r", ExpiresAt: tokenNow.Add(time.Hour).Unix()}, nil
	}}
	mgr := application.NewTokenManager(creds, newMockMemberStore(), oauth, 0, fixedClock(tokenNow))

	go func() { _, _ = mgr.EnsureValidToken(context.Background(), "user-1") }()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mgr.ForceRefresh(ctx, "user-1", "access-old")
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}

func TestConnect(t *testing.T) {
	creds := newMockCredentialStore()
	members := newMockMemberStore()
	oauth := &mockOAuth{exchange: func(code string) (*model.TokenBundle, error) {
		require.Equal(t, "code-1", code)
		return &model.TokenBundle{
			AccessToken: "a1", RefreshToken: "r1", ExpiresAt: 123,
			ProviderAthleteID: "4242", AthleteName: "Lan Nguyen",
		}, nil
	}}
	mgr := application.NewTokenManager(creds, members, oauth, 0, fixedClock(tokenNow))

	bundle, err := mgr.Connect(context.Background(), "user-1", "code-1", "https://club.example/cb")
	require.NoError(t, err)
	assert.Equal(t, "Lan Nguyen", bundle.AthleteName)

	stored := creds.get("user-1")
	assert.Equal(t, "a1", stored.AccessToken)
	assert.Equal(t, "r1", stored.RefreshToken)
	assert.Equal(t, "4242", stored.ProviderAthleteID)
	assert.Equal(t, "4242", members.linked["user-1"])
}

func TestConnect_ExchangeFailed(t *testing.T) {
	creds := newMockCredentialStore()
	oauth := &mockOAuth{exchange: func(string) (*model.TokenBundle, error) {
		return nil, fmt.Errorf("exchange code: %w: status 400", driven.ErrExchangeFailed)
	}}
	mgr := application.NewTokenManager(creds, newMockMemberStore(), oauth, 0, fixedClock(tokenNow))

	_, err := mgr.Connect(context.Background(), "user-1", "bad", "https://club.example/cb")
	require.Error(t, err)
	assert.Equal(t, model.ErrorKindExchangeFailed, application.ErrorKindOf(err))
	assert.Equal(t, 0, creds.writeCount())
}

func TestConnectionStatus(t *testing.T) {
	rejecting := &mockOAuth{refresh: func(string) (*model.TokenBundle, error) {
		return nil, driven.ErrRefreshFailed
	}}

	tests := []struct {
		name  string
		creds *mockCredentialStore
		oauth *mockOAuth
		want  model.ConnectionStatus
	}{
		{
			name:  "never connected",
			creds: newMockCredentialStore(),
			oauth: rotatingOAuth(),
			want:  model.ConnectionStatus{},
		},
		{
			name:  "valid token",
			creds: newMockCredentialStore(credentialExpiringIn("user-1", time.Hour)),
			oauth: rotatingOAuth(),
			want:  model.ConnectionStatus{Connected: true, TokenValid: true},
		},
		{
			name:  "refresh rejected",
			creds: newMockCredentialStore(credentialExpiringIn("user-1", -time.Hour)),
			oauth: rejecting,
			want:  model.ConnectionStatus{Connected: true, NeedsReauth: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := application.NewTokenManager(tt.creds, newMockMemberStore(), tt.oauth, 0, fixedClock(tokenNow))

			got, err := mgr.ConnectionStatus(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want.Connected, got.Connected)
			assert.Equal(t, tt.want.TokenValid, got.TokenValid)
			assert.Equal(t, tt.want.NeedsReauth, got.NeedsReauth)
			assert.Equal(t, tt.want.TokenValid, got.ExpiresAt != nil)
		})
	}
}
