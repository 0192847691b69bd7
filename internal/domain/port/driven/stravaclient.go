package driven

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
)

// Provider errors. Adapters wrap these so callers can classify with errors.Is.
var (
	// ErrUnauthorized indicates the provider rejected the access token.
	ErrUnauthorized = errors.New("provider rejected access token")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrTransient indicates a network failure or provider-side 5xx.
	ErrTransient = errors.New("transient provider error")

	// ErrExchangeFailed indicates the provider rejected an authorization code.
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrRefreshFailed indicates the provider rejected a refresh token.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// RateLimitError is returned when the provider answers 429. RetryAfter is the
// provider's suggested wait, or zero when unknown.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

// Is lets errors.Is(err, ErrRateLimited) match a *RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// StravaOAuth defines the driven port for the provider's OAuth endpoints.
// Each call is a single round trip with no internal retry.
type StravaOAuth interface {
	// AuthCodeURL returns the authorization URL the member is redirected to.
	AuthCodeURL(state, redirectURI string) string

	// ExchangeCode trades an authorization code for a token bundle.
	// Rejections wrap ErrExchangeFailed.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*model.TokenBundle, error)

	// Refresh trades a refresh token for a new pair. Rejections wrap ErrRefreshFailed.
	Refresh(ctx context.Context, refreshToken string) (*model.TokenBundle, error)
}

// ActivityPage selects one page of the athlete activity feed.
type ActivityPage struct {
	Before  time.Time
	After   time.Time
	Page    int // 1-based.
	PerPage int
}

// StravaActivities defines the driven port for reading a member's activities.
type StravaActivities interface {
	// ListActivities returns one page of the feed. An empty slice means the
	// feed is exhausted.
	ListActivities(ctx context.Context, accessToken string, page ActivityPage) ([]model.RawActivity, error)

	// GetActivity returns the detailed view of one activity.
	GetActivity(ctx context.Context, accessToken, externalID string) (*model.RawActivity, error)
}
