package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

// SyncConfig tunes a SyncService.
type SyncConfig struct {
	ActivityTypes   []string       // Kept types, matched on type or sport type. Empty keeps all.
	FetchDetails    bool           // Fill missing rich fields from the detail endpoint.
	DefaultLocation *time.Location // For members without a timezone. Nil means UTC.
	Now             func() time.Time
}

// SyncService runs one member's sync pass: token, fetch, filter, reconcile.
type SyncService struct {
	members    driven.MemberStore
	tokens     *TokenManager
	client     driven.StravaActivities
	fetcher    *ActivityFetcher
	reconciler *Reconciler
	cfg        SyncConfig
}

// NewSyncService creates a SyncService.
func NewSyncService(
	members driven.MemberStore,
	tokens *TokenManager,
	client driven.StravaActivities,
	fetcher *ActivityFetcher,
	reconciler *Reconciler,
	cfg SyncConfig,
) *SyncService {
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SyncService{
		members:    members,
		tokens:     tokens,
		client:     client,
		fetcher:    fetcher,
		reconciler: reconciler,
		cfg:        cfg,
	}
}

// SyncUserActivitiesForCurrentMonth syncs userID's current calendar month in
// the member's timezone.
func (s *SyncService) SyncUserActivitiesForCurrentMonth(ctx context.Context, userID string) (*model.SyncResult, error) {
	member, err := s.member(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.SyncMemberCurrentMonth(ctx, *member)
}

// SyncUserActivities syncs userID for the given calendar month.
func (s *SyncService) SyncUserActivities(ctx context.Context, userID string, month time.Month, year int) (*model.SyncResult, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	if year < 2009 || year > s.cfg.Now().Year()+1 {
		return nil, fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}

	member, err := s.member(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.SyncMember(ctx, *member, model.MonthWindow(year, month, s.Location(*member)))
}

// SyncMemberCurrentMonth syncs member's current calendar month.
func (s *SyncService) SyncMemberCurrentMonth(ctx context.Context, member model.Member) (*model.SyncResult, error) {
	return s.SyncMember(ctx, member, model.CurrentMonthWindow(s.cfg.Now(), s.Location(member)))
}

// SyncMember runs a full pass for member over window. A provider 401 gets
// exactly one forced refresh and one re-fetch.
func (s *SyncService) SyncMember(ctx context.Context, member model.Member, window model.Window) (*model.SyncResult, error) {
	token, err := s.tokens.EnsureValidToken(ctx, member.UserID)
	if err != nil {
		return nil, err
	}

	raws, err := CollectActivities(s.fetcher.Fetch(ctx, token, window))
	if errors.Is(err, driven.ErrUnauthorized) {
		slog.Info("access token rejected, forcing refresh", "user_id", member.UserID)

		token, err = s.tokens.ForceRefresh(ctx, member.UserID, token)
		if err != nil {
			return nil, err
		}

		raws, err = CollectActivities(s.fetcher.Fetch(ctx, token, window))
		if errors.Is(err, driven.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: token rejected after refresh for %s: %w", driven.ErrRefreshFailed, member.UserID, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch activities for %s: %w", member.UserID, err)
	}

	kept := raws[:0]
	for _, raw := range raws {
		if raw.MatchesType(s.cfg.ActivityTypes) {
			kept = append(kept, raw)
		}
	}

	if s.cfg.FetchDetails {
		kept = s.enrich(ctx, member.UserID, token, kept)
	}

	return s.reconciler.Reconcile(ctx, member, window, kept)
}

// CheckConnectionStatus reports whether userID has a usable Strava connection.
func (s *SyncService) CheckConnectionStatus(ctx context.Context, userID string) (model.ConnectionStatus, error) {
	return s.tokens.ConnectionStatus(ctx, userID)
}

// Location resolves the member's timezone, falling back to the default.
func (s *SyncService) Location(member model.Member) *time.Location {
	if member.Timezone == "" {
		return s.cfg.DefaultLocation
	}
	loc, err := time.LoadLocation(member.Timezone)
	if err != nil {
		slog.Warn("unknown member timezone, using default", "user_id", member.UserID, "timezone", member.Timezone)
		return s.cfg.DefaultLocation
	}
	return loc
}

// enrich fills rich fields from the detail endpoint. A failed detail fetch
// keeps the summary; cancellation stops enrichment early.
func (s *SyncService) enrich(ctx context.Context, userID, token string, raws []model.RawActivity) []model.RawActivity {
	for i, raw := range raws {
		if !raw.NeedsDetail() {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		detail, err := s.client.GetActivity(ctx, token, raw.ExternalID)
		if err != nil {
			slog.Warn("activity detail fetch failed", "user_id", userID, "external_id", raw.ExternalID, "error", err)
			continue
		}
		raws[i] = raw.MergeDetail(*detail)
	}
	return raws
}

// member loads userID. An unknown user has no credential by definition.
func (s *SyncService) member(ctx context.Context, userID string) (*model.Member, error) {
	member, err := s.members.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load member %s: %w", ErrPersistence, userID, err)
	}
	if member == nil {
		return nil, fmt.Errorf("unknown member %s: %w", userID, ErrNoCredential)
	}
	return member, nil
}
