package model

import "time"

// Credential is a member's stored Strava OAuth credential. There is at most one
// per user; every exchange or refresh replaces it in full because Strava
// rotates refresh tokens.
type Credential struct {
	UserID            string
	ProviderAthleteID string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         int64 // Epoch seconds.
	UpdatedAt         time.Time
}

// NeedsRefresh reports whether the access token is expired or will expire
// within margin of now.
func (c Credential) NeedsRefresh(now time.Time, margin time.Duration) bool {
	return now.Unix() >= c.ExpiresAt-int64(margin/time.Second)
}

// Expiry returns ExpiresAt as a time.Time.
func (c Credential) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

// TokenBundle is the provider's answer to a code exchange or token refresh.
type TokenBundle struct {
	AccessToken       string
	RefreshToken      string
	ExpiresAt         int64
	ProviderAthleteID string // Present on code exchange only.
	AthleteName       string // "firstname lastname" on code exchange only.
}

// ConnectionStatus describes whether a member can currently be synced.
type ConnectionStatus struct {
	Connected   bool
	TokenValid  bool
	NeedsReauth bool
	ExpiresAt   *time.Time
}
