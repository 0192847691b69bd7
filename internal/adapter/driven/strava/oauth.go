// Package strava implements the Strava OAuth and activity ports.
package strava

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

// Production endpoints.
const (
	DefaultAuthURL  = "https://www.strava.com/oauth/authorize"
	DefaultTokenURL = "https://www.strava.com/api/v3/oauth/token"
	DefaultAPIURL   = "https://www.strava.com/api/v3"

	// ScopeActivityReadAll grants read access to all of the athlete's activities.
	ScopeActivityReadAll = "activity:read_all"
)

var _ driven.StravaOAuth = (*OAuthClient)(nil)

// OAuthClient talks to Strava's OAuth endpoints through golang.org/x/oauth2.
// Client credentials travel in the form body, as Strava expects.
type OAuthClient struct {
	base       oauth2.Config
	httpClient *http.Client
}

// NewOAuthClient creates an OAuthClient. Empty URLs fall back to the
// production endpoints; a nil httpClient gets a 15s timeout client.
func NewOAuthClient(clientID, clientSecret, authURL, tokenURL string, httpClient *http.Client) *OAuthClient {
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &OAuthClient{
		base: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{ScopeActivityReadAll},
		},
		httpClient: httpClient,
	}
}

func (c *OAuthClient) config(redirectURI string) *oauth2.Config {
	cfg := c.base
	cfg.RedirectURL = redirectURI
	return &cfg
}

// AuthCodeURL returns the Strava authorize URL for state and redirectURI.
func (c *OAuthClient) AuthCodeURL(state, redirectURI string) string {
	return c.config(redirectURI).AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// ExchangeCode trades an authorization code for a token bundle in one round trip.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*model.TokenBundle, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.config(redirectURI).Exchange(ctx, code)
	observeTokenCall(err)
	if err != nil {
		return nil, classifyTokenError(ctx, "exchange code", driven.ErrExchangeFailed, err)
	}
	return toBundle(tok)
}

// Refresh trades refreshToken for a new pair in one round trip. Strava may
// rotate the refresh token, so callers must persist the returned one.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*model.TokenBundle, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	// An empty access token forces the source to hit the token endpoint.
	src := c.base.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	observeTokenCall(err)
	if err != nil {
		return nil, classifyTokenError(ctx, "refresh token", driven.ErrRefreshFailed, err)
	}
	return toBundle(tok)
}

// classifyTokenError maps a token endpoint failure: provider 4xx → rejected,
// 5xx or no response → driven.ErrTransient.
func classifyTokenError(ctx context.Context, op string, rejected, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		switch {
		case status == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", op, &driven.RateLimitError{RetryAfter: retryAfter(retrieveErr.Response.Header, time.Now())})
		case status >= 500:
			return fmt.Errorf("%s: %w: status %d", op, driven.ErrTransient, status)
		default:
			return fmt.Errorf("%s: %w: status %d: %s", op, rejected, status, truncate(string(retrieveErr.Body), 200))
		}
	}

	return fmt.Errorf("%s: %w: %w", op, driven.ErrTransient, err)
}

// toBundle converts an oauth2 token. Strava's expires_at is authoritative;
// oauth2's Expiry, derived from expires_in, is the fallback.
func toBundle(tok *oauth2.Token) (*model.TokenBundle, error) {
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, errors.New("token response missing access or refresh token")
	}

	bundle := &model.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    numberExtra(tok.Extra("expires_at")),
	}
	if bundle.ExpiresAt == 0 && !tok.Expiry.IsZero() {
		bundle.ExpiresAt = tok.Expiry.Unix()
	}

	if athlete, ok := tok.Extra("athlete").(map[string]any); ok {
		if id := numberExtra(athlete["id"]); id != 0 {
			bundle.ProviderAthleteID = strconv.FormatInt(id, 10)
		}
		first, _ := athlete["firstname"].(string)
		last, _ := athlete["lastname"].(string)
		bundle.AthleteName = strings.TrimSpace(first + " " + last)
	}

	return bundle, nil
}

// numberExtra reads a JSON number from a token response extra field.
func numberExtra(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
