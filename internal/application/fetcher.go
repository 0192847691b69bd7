package application

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

// DefaultPerPage is the largest page size Strava accepts.
const DefaultPerPage = 200

// errSequenceConsumed is yielded when a fetched sequence is ranged over twice.
var errSequenceConsumed = errors.New("activity sequence already consumed")

// ActivityFetcher turns the paginated activity feed into a lazy sequence.
type ActivityFetcher struct {
	client  driven.StravaActivities
	perPage int
}

// NewActivityFetcher creates an ActivityFetcher. A non-positive perPage uses DefaultPerPage.
func NewActivityFetcher(client driven.StravaActivities, perPage int) *ActivityFetcher {
	if perPage <= 0 || perPage > DefaultPerPage {
		perPage = DefaultPerPage
	}
	return &ActivityFetcher{client: client, perPage: perPage}
}

// Fetch returns the athlete's activities inside window, requesting pages
// only as the caller consumes them. The feed ends at an empty page, a short
// page, or a page holding an activity older than window.Start. Activities
// outside the window are skipped. The first error is yielded once and ends
// the sequence; the sequence cannot be restarted.
func (f *ActivityFetcher) Fetch(ctx context.Context, accessToken string, window model.Window) iter.Seq2[model.RawActivity, error] {
	var consumed atomic.Bool

	return func(yield func(model.RawActivity, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(model.RawActivity{}, errSequenceConsumed)
			return
		}

		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(model.RawActivity{}, err)
				return
			}

			items, err := f.client.ListActivities(ctx, accessToken, driven.ActivityPage{
				Before:  window.End,
				After:   window.Start.Add(-time.Second),
				Page:    page,
				PerPage: f.perPage,
			})
			if err != nil {
				yield(model.RawActivity{}, err)
				return
			}
			if len(items) == 0 {
				return
			}

			var reachedStart bool
			for _, item := range items {
				if item.StartDate.Before(window.Start) {
					reachedStart = true
					continue
				}
				if !window.Contains(item.StartDate) {
					continue
				}
				if !yield(item, nil) {
					return
				}
			}

			if reachedStart || len(items) < f.perPage {
				return
			}
		}
	}
}

// CollectActivities drains seq, stopping at the first error.
func CollectActivities(seq iter.Seq2[model.RawActivity, error]) ([]model.RawActivity, error) {
	var out []model.RawActivity
	for activity, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, activity)
	}
	return out, nil
}
