package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
)

// ActivityStore defines the driven port for synced activities.
type ActivityStore interface {
	// GetByExternalID returns the stored activity, or (nil, nil) when absent.
	GetByExternalID(ctx context.Context, provider, externalID string) (*model.Activity, error)

	// Upsert inserts the activity or updates the row with the same
	// (provider, external id) in place. The write is atomic.
	Upsert(ctx context.Context, activity model.Activity) error

	// ListByUser returns the user's activities with from <= start_date < to,
	// newest first.
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]model.Activity, error)
}
