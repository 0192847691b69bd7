package httphandler_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/clubsync/internal/adapter/driving/http"
)

const sessionSecret = "super-secret-jwt-key"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{"sub": sub, "exp": time.Now().Add(time.Hour).Unix()}
}

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestJWTUserResolver(t *testing.T) {
	token := signToken(t, sessionSecret, validClaims("user-42"))
	blobJSON := `{"access_token":"` + token + `","refresh_token":"r"}`

	tests := []struct {
		name    string
		cookies []*http.Cookie
		want    string
		wantErr bool
	}{
		{
			name:    "raw access cookie",
			cookies: []*http.Cookie{{Name: "sb-access-token", Value: token}},
			want:    "user-42",
		},
		{
			name:    "blob object",
			cookies: []*http.Cookie{{Name: "sb-auth-token", Value: url.QueryEscape(blobJSON)}},
			want:    "user-42",
		},
		{
			name:    "blob array",
			cookies: []*http.Cookie{{Name: "sb-auth-token", Value: url.QueryEscape(`["` + token + `","r",null]`)}},
			want:    "user-42",
		},
		{
			name:    "base64 blob",
			cookies: []*http.Cookie{{Name: "sb-auth-token", Value: "base64-" + base64.RawURLEncoding.EncodeToString([]byte(blobJSON))}},
			want:    "user-42",
		},
		{
			name: "chunked base64 blob",
			cookies: func() []*http.Cookie {
				enc := "base64-" + base64.RawURLEncoding.EncodeToString([]byte(blobJSON))
				mid := len(enc) / 2
				return []*http.Cookie{
					{Name: "sb-auth-token.0", Value: enc[:mid]},
					{Name: "sb-auth-token.1", Value: enc[mid:]},
				}
			}(),
			want: "user-42",
		},
		{
			name:    "no cookies",
			wantErr: true,
		},
		{
			name:    "garbage blob",
			cookies: []*http.Cookie{{Name: "sb-auth-token", Value: "base64-!!!"}},
			wantErr: true,
		},
		{
			name:    "wrong signing secret",
			cookies: []*http.Cookie{{Name: "sb-access-token", Value: signToken(t, "other-secret", validClaims("user-42"))}},
			wantErr: true,
		},
		{
			name: "expired token",
			cookies: []*http.Cookie{{Name: "sb-access-token", Value: signToken(t, sessionSecret, jwt.MapClaims{
				"sub": "user-42", "exp": time.Now().Add(-time.Minute).Unix(),
			})}},
			wantErr: true,
		},
		{
			name:    "token without expiry",
			cookies: []*http.Cookie{{Name: "sb-access-token", Value: signToken(t, sessionSecret, jwt.MapClaims{"sub": "user-42"})}},
			wantErr: true,
		},
		{
			name:    "token without subject",
			cookies: []*http.Cookie{{Name: "sb-access-token", Value: signToken(t, sessionSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})}},
			wantErr: true,
		},
	}

	resolver := httphandler.NewJWTUserResolver(sessionSecret, "sb-access-token", "sb-auth-token")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.ResolveCurrentUser(requestWithCookies(tt.cookies...))
			if tt.wantErr {
				require.ErrorIs(t, err, httphandler.ErrNoSession)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJWTUserResolver_NoSecretRejectsAll(t *testing.T) {
	token := signToken(t, sessionSecret, validClaims("user-42"))
	resolver := httphandler.NewJWTUserResolver("", "sb-access-token", "")

	_, err := resolver.ResolveCurrentUser(requestWithCookies(&http.Cookie{Name: "sb-access-token", Value: token}))
	assert.ErrorIs(t, err, httphandler.ErrNoSession)
}

func TestJWTUserResolver_RejectsNoneAlgorithm(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("user-42")).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	resolver := httphandler.NewJWTUserResolver(sessionSecret, "sb-access-token", "")

	_, err = resolver.ResolveCurrentUser(requestWithCookies(&http.Cookie{Name: "sb-access-token", Value: unsigned}))
	assert.ErrorIs(t, err, httphandler.ErrNoSession)
}
