package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
)

// MemberStore defines the driven port for club member profiles.
type MemberStore interface {
	// Get returns the member, or (nil, nil) when the user is unknown.
	Get(ctx context.Context, userID string) (*model.Member, error)

	// ListEligible returns active members that have a stored credential.
	ListEligible(ctx context.Context) ([]model.Member, error)

	// LinkAthlete records the Strava athlete for userID, creating the member
	// row if needed.
	LinkAthlete(ctx context.Context, userID, athleteID, athleteName string) error

	// SetMonthlyGoal sets the monthly distance goal; nil clears it.
	SetMonthlyGoal(ctx context.Context, userID string, goalKm *float64) error
}

// ErrMemberNotFound is returned by MemberStore writes that target an unknown user.
var ErrMemberNotFound = errors.New("member not found")
