package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
	"github.com/ericfisherdev/clubsync/internal/observability"
)

// Reconciler merges fetched activities into local storage and summarizes a window.
type Reconciler struct {
	activities driven.ActivityStore
	archive    driven.ObjectStore // Optional.
}

// NewReconciler creates a Reconciler. archive may be nil.
func NewReconciler(activities driven.ActivityStore, archive driven.ObjectStore) *Reconciler {
	return &Reconciler{activities: activities, archive: archive}
}

// Reconcile upserts raws for member and returns the summary of every stored
// activity in window. New activities are inserted, changed ones updated in
// place, identical ones left untouched, so repeating a call writes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, member model.Member, window model.Window, raws []model.RawActivity) (*model.SyncResult, error) {
	var inserted, updated, unchanged int

	for _, raw := range raws {
		incoming := toActivity(member.UserID, raw)

		existing, err := r.activities.GetByExternalID(ctx, incoming.Provider, incoming.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("%w: look up activity %s: %w", ErrPersistence, incoming.ExternalID, err)
		}

		write := incoming
		if existing != nil {
			write = existing.Merge(incoming)
			if write.SameTrackedFields(*existing) {
				unchanged++
				continue
			}
		}

		if err := r.activities.Upsert(ctx, write); err != nil {
			return nil, fmt.Errorf("%w: store activity %s: %w", ErrPersistence, incoming.ExternalID, err)
		}
		if existing == nil {
			inserted++
		} else {
			updated++
		}

		r.archiveRaw(ctx, member.UserID, raw)
	}

	stored, err := r.activities.ListByUser(ctx, member.UserID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("%w: list activities for %s: %w", ErrPersistence, member.UserID, err)
	}

	result := Summarize(stored, member.MonthlyGoalKm)
	result.Window = window
	result.Inserted = inserted
	result.Updated = updated
	result.Unchanged = unchanged

	observability.ObserveReconcile(inserted, updated, unchanged)
	slog.Info("activities reconciled",
		"user_id", member.UserID,
		"fetched", len(raws),
		"inserted", inserted,
		"updated", updated,
		"unchanged", unchanged,
		"total_km", result.TotalKm,
	)

	return &result, nil
}

// archiveRaw stores the provider payload. Failures never fail the reconcile.
func (r *Reconciler) archiveRaw(ctx context.Context, userID string, raw model.RawActivity) {
	if r.archive == nil || len(raw.Payload) == 0 {
		return
	}

	path := fmt.Sprintf("activities/%s/%s.json", userID, raw.ExternalID)
	if _, err := r.archive.Upload(ctx, path, raw.Payload, "application/json"); err != nil {
		slog.Warn("archive raw activity failed", "user_id", userID, "external_id", raw.ExternalID, "error", err)
	}
}

// Summarize aggregates activities into a SyncResult. Distance is rounded to
// two decimals before the pace is derived from it; pace is zero when no
// distance was covered. ProgressPercent is set only for a positive goal.
func Summarize(activities []model.Activity, goalKm *float64) model.SyncResult {
	var (
		meters, elevation          float64
		moving                     int
		hrSum, cadenceSum          float64
		hrCount, cadenceCount, odd int
	)

	for _, a := range activities {
		meters += a.DistanceMeters
		moving += a.EffectiveMovingSeconds()
		if a.AverageHeartRate != nil {
			hrSum += *a.AverageHeartRate
			hrCount++
		}
		if a.AverageCadence != nil {
			cadenceSum += *a.AverageCadence
			cadenceCount++
		}
		if a.TotalElevationGainMeters != nil {
			elevation += *a.TotalElevationGainMeters
		}
		if pace, ok := model.PacePerKm(a.EffectiveMovingSeconds(), a.DistanceMeters/1000); ok &&
			!model.PaceWithinRange(pace, 0, 0) {
			odd++
		}
	}

	result := model.SyncResult{
		TotalKm:                  model.Round2(meters / 1000),
		TotalActivities:          len(activities),
		TotalElevationGainMeters: model.Round2(elevation),
		OutOfRangePace:           odd,
	}

	if pace, ok := model.PacePerKm(moving, result.TotalKm); ok {
		result.AvgPaceSecondsPerKm = pace
	}
	if hrCount > 0 {
		v := model.Round2(hrSum / float64(hrCount))
		result.AvgHeartRate = &v
	}
	if cadenceCount > 0 {
		v := model.Round2(cadenceSum / float64(cadenceCount))
		result.AvgCadence = &v
	}
	if goalKm != nil && *goalKm > 0 {
		v := model.Round2(result.TotalKm / *goalKm * 100)
		result.ProgressPercent = &v
	}

	return result
}

func toActivity(userID string, raw model.RawActivity) model.Activity {
	return model.Activity{
		Provider:                 model.ProviderStrava,
		ExternalID:               raw.ExternalID,
		UserID:                   userID,
		Name:                     raw.Name,
		DistanceMeters:           raw.DistanceMeters,
		MovingTimeSeconds:        raw.MovingTimeSeconds,
		ElapsedTimeSeconds:       raw.ElapsedTimeSeconds,
		AverageHeartRate:         raw.AverageHeartRate,
		AverageCadence:           raw.AverageCadence,
		TotalElevationGainMeters: raw.TotalElevationGainMeters,
		StartDate:                raw.StartDate,
		ActivityType:             raw.ActivityType(),
		MapSummaryPolyline:       raw.MapSummaryPolyline,
	}
}
