package application_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/clubsync/internal/application"
	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

var march2026 = model.MonthWindow(2026, time.March, time.UTC)

// pagedFeed serves feed newest-first in pages, ignoring the before/after
// filter so the fetcher's own window handling is exercised.
func pagedFeed(feed []model.RawActivity) *mockActivities {
	return &mockActivities{
		list: func(_ string, p driven.ActivityPage) ([]model.RawActivity, error) {
			start := (p.Page - 1) * p.PerPage
			if start >= len(feed) {
				return nil, nil
			}
			end := min(start+p.PerPage, len(feed))
			return feed[start:end], nil
		},
	}
}

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 7, 0, 0, 0, time.UTC)
}

func ids(raws []model.RawActivity) []string {
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		out = append(out, r.ExternalID)
	}
	return out
}

func TestFetch_StopsAtPageReachingWindowStart(t *testing.T) {
	feed := []model.RawActivity{
		rawRun("6", day(20), 5000, 1500),
		rawRun("5", day(15), 5000, 1500),
		rawRun("4", day(10), 5000, 1500),
		rawRun("3", day(5), 5000, 1500),
		rawRun("2", day(1), 5000, 1500),
		rawRun("1", time.Date(2026, time.February, 27, 7, 0, 0, 0, time.UTC), 5000, 1500),
		rawRun("0", time.Date(2026, time.February, 20, 7, 0, 0, 0, time.UTC), 5000, 1500),
	}
	client := pagedFeed(feed)
	fetcher := application.NewActivityFetcher(client, 2)

	got, err := application.CollectActivities(fetcher.Fetch(context.Background(), "tok", march2026))
	require.NoError(t, err)

	assert.Equal(t, []string{"6", "5", "4", "3", "2"}, ids(got))
	assert.Equal(t, []int{1, 2, 3}, client.pagesRequested())
}

func TestFetch_RequestBounds(t *testing.T) {
	client := pagedFeed(nil)
	fetcher := application.NewActivityFetcher(client, 50)

	_, err := application.CollectActivities(fetcher.Fetch(context.Background(), "tok", march2026))
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, march2026.End, req.Before)
	assert.Equal(t, march2026.Start.Add(-time.Second), req.After)
	assert.Equal(t, 50, req.PerPage)
}

func TestFetch_EndsOnEmptyOrShortPage(t *testing.T) {
	tests := []struct {
		name      string
		feed      []model.RawActivity
		wantIDs   []string
		wantPages []int
	}{
		{
			name:      "empty feed",
			feed:      nil,
			wantIDs:   []string{},
			wantPages: []int{1},
		},
		{
			name:      "short first page",
			feed:      []model.RawActivity{rawRun("1", day(3), 4000, 1400)},
			wantIDs:   []string{"1"},
			wantPages: []int{1},
		},
		{
			name: "exactly one full page",
			feed: []model.RawActivity{
				rawRun("2", day(4), 4000, 1400),
				rawRun("1", day(3), 4000, 1400),
			},
			wantIDs:   []string{"2", "1"},
			wantPages: []int{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := pagedFeed(tt.feed)
			fetcher := application.NewActivityFetcher(client, 2)

			got, err := application.CollectActivities(fetcher.Fetch(context.Background(), "tok", march2026))
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(got))
			assert.Equal(t, tt.wantPages, client.pagesRequested())
		})
	}
}

func TestFetch_SkipsActivitiesAfterWindowEnd(t *testing.T) {
	feed := []model.RawActivity{
		rawRun("late", time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), 5000, 1500),
		rawRun("in", day(31), 5000, 1500),
	}
	fetcher := application.NewActivityFetcher(pagedFeed(feed), 10)

	got, err := application.CollectActivities(fetcher.Fetch(context.Background(), "tok", march2026))
	require.NoError(t, err)
	assert.Equal(t, []string{"in"}, ids(got))
}

func TestFetch_PropagatesProviderError(t *testing.T) {
	client := &mockActivities{
		list: func(_ string, p driven.ActivityPage) ([]model.RawActivity, error) {
			if p.Page == 2 {
				return nil, fmt.Errorf("list activities: %w", driven.ErrUnauthorized)
			}
			return []model.RawActivity{rawRun("2", day(9), 1000, 300), rawRun("1", day(8), 1000, 300)}, nil
		},
	}
	fetcher := application.NewActivityFetcher(client, 2)

	var seen []string
	var gotErr error
	for raw, err := range fetcher.Fetch(context.Background(), "tok", march2026) {
		if err != nil {
			gotErr = err
			break
		}
		seen = append(seen, raw.ExternalID)
	}

	assert.Equal(t, []string{"2", "1"}, seen)
	assert.ErrorIs(t, gotErr, driven.ErrUnauthorized)

	_, err := application.CollectActivities(application.NewActivityFetcher(client, 2).Fetch(context.Background(), "tok", march2026))
	assert.ErrorIs(t, err, driven.ErrUnauthorized)
}

func TestFetch_IsLazy(t *testing.T) {
	feed := make([]model.RawActivity, 0, 6)
	for d := 20; d > 14; d-- {
		feed = append(feed, rawRun(fmt.Sprint(d), day(d), 3000, 900))
	}
	client := pagedFeed(feed)
	fetcher := application.NewActivityFetcher(client, 2)

	for range fetcher.Fetch(context.Background(), "tok", march2026) {
		break
	}

	assert.Equal(t, []int{1}, client.pagesRequested())
}

func TestFetch_SingleUse(t *testing.T) {
	fetcher := application.NewActivityFetcher(pagedFeed([]model.RawActivity{rawRun("1", day(2), 3000, 900)}), 2)
	seq := fetcher.Fetch(context.Background(), "tok", march2026)

	first, err := application.CollectActivities(seq)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	_, err = application.CollectActivities(seq)
	assert.Error(t, err)
}

func TestFetch_CanceledContext(t *testing.T) {
	client := pagedFeed([]model.RawActivity{rawRun("1", day(2), 3000, 900)})
	fetcher := application.NewActivityFetcher(client, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := application.CollectActivities(fetcher.Fetch(ctx, "tok", march2026))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, client.pagesRequested())
}
