package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

var _ driven.ActivityStore = (*ActivityRepo)(nil)

// startDateLayout stores start dates as fixed-width UTC text so range
// predicates compare lexicographically.
const startDateLayout = "2006-01-02T15:04:05Z"

// ActivityRepo is the SQLite implementation of driven.ActivityStore.
type ActivityRepo struct {
	db *DB
}

// NewActivityRepo creates an ActivityRepo.
func NewActivityRepo(db *DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

const activityColumns = `
	id, provider, external_id, user_id, name, distance_meters,
	moving_time_seconds, elapsed_time_seconds, average_heartrate, average_cadence,
	total_elevation_gain, start_date, activity_type, map_summary_polyline,
	created_at, updated_at`

// GetByExternalID returns the stored activity, or (nil, nil) when absent.
func (r *ActivityRepo) GetByExternalID(ctx context.Context, provider, externalID string) (*model.Activity, error) {
	query := `SELECT` + activityColumns + ` FROM activities WHERE provider = ? AND external_id = ?`

	activity, err := scanActivity(r.db.Reader.QueryRowContext(ctx, query, provider, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity %s/%s: %w", provider, externalID, err)
	}
	return activity, nil
}

// Upsert inserts the activity or updates the row with the same provider and
// external id in place, keeping its row id and created_at.
func (r *ActivityRepo) Upsert(ctx context.Context, a model.Activity) error {
	const query = `
		INSERT INTO activities (
			provider, external_id, user_id, name, distance_meters,
			moving_time_seconds, elapsed_time_seconds, average_heartrate, average_cadence,
			total_elevation_gain, start_date, activity_type, map_summary_polyline,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(provider, external_id) DO UPDATE SET
			user_id              = excluded.user_id,
			name                 = excluded.name,
			distance_meters      = excluded.distance_meters,
			moving_time_seconds  = excluded.moving_time_seconds,
			elapsed_time_seconds = excluded.elapsed_time_seconds,
			average_heartrate    = COALESCE(excluded.average_heartrate, activities.average_heartrate),
			average_cadence      = COALESCE(excluded.average_cadence, activities.average_cadence),
			total_elevation_gain = COALESCE(excluded.total_elevation_gain, activities.total_elevation_gain),
			start_date           = excluded.start_date,
			activity_type        = excluded.activity_type,
			map_summary_polyline = CASE WHEN excluded.map_summary_polyline = '' THEN activities.map_summary_polyline ELSE excluded.map_summary_polyline END,
			updated_at           = CURRENT_TIMESTAMP`

	_, err := r.db.Writer.ExecContext(ctx, query,
		a.Provider,
		a.ExternalID,
		a.UserID,
		a.Name,
		a.DistanceMeters,
		a.MovingTimeSeconds,
		a.ElapsedTimeSeconds,
		nullFloat(a.AverageHeartRate),
		nullFloat(a.AverageCadence),
		nullFloat(a.TotalElevationGainMeters),
		a.StartDate.UTC().Format(startDateLayout),
		a.ActivityType,
		a.MapSummaryPolyline,
	)
	if err != nil {
		return fmt.Errorf("upsert activity %s/%s: %w", a.Provider, a.ExternalID, err)
	}
	return nil
}

// ListByUser returns the user's activities with from <= start_date < to, newest first.
func (r *ActivityRepo) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]model.Activity, error) {
	query := `SELECT` + activityColumns + `
		FROM activities
		WHERE user_id = ? AND start_date >= ? AND start_date < ?
		ORDER BY start_date DESC, id DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query,
		userID,
		from.UTC().Format(startDateLayout),
		to.UTC().Format(startDateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list activities for %s: %w", userID, err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}

	return activities, nil
}

func scanActivity(s scanner) (*model.Activity, error) {
	var (
		a                               model.Activity
		heartRate, cadence, elevation   sql.NullFloat64
		startDate, createdAt, updatedAt string
	)
	err := s.Scan(
		&a.ID, &a.Provider, &a.ExternalID, &a.UserID, &a.Name, &a.DistanceMeters,
		&a.MovingTimeSeconds, &a.ElapsedTimeSeconds, &heartRate, &cadence,
		&elevation, &startDate, &a.ActivityType, &a.MapSummaryPolyline,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.AverageHeartRate = floatPtr(heartRate)
	a.AverageCadence = floatPtr(cadence)
	a.TotalElevationGainMeters = floatPtr(elevation)

	if a.StartDate, err = parseTime(startDate); err != nil {
		return nil, fmt.Errorf("parse start_date: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &a, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
