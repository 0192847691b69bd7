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

var _ driven.MemberStore = (*MemberRepo)(nil)

// MemberRepo is the SQLite implementation of driven.MemberStore.
type MemberRepo struct {
	db *DB
}

// NewMemberRepo creates a MemberRepo.
func NewMemberRepo(db *DB) *MemberRepo {
	return &MemberRepo{db: db}
}

const memberColumns = `
	m.user_id, m.display_name, m.strava_athlete_id, m.strava_athlete_name,
	m.is_active, m.monthly_goal_km, m.timezone, m.created_at, m.updated_at`

// Get returns the member, or (nil, nil) when the user is unknown.
func (r *MemberRepo) Get(ctx context.Context, userID string) (*model.Member, error) {
	query := `SELECT` + memberColumns + ` FROM members m WHERE m.user_id = ?`

	member, err := scanMember(r.db.Reader.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", userID, err)
	}
	return member, nil
}

// ListEligible returns active members with a stored credential, ordered by user id.
func (r *MemberRepo) ListEligible(ctx context.Context) ([]model.Member, error) {
	query := `SELECT` + memberColumns + `
		FROM members m
		JOIN strava_credentials c ON c.user_id = m.user_id
		WHERE m.is_active = 1
		ORDER BY m.user_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list eligible members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}

// LinkAthlete records the Strava athlete for userID, creating the member if needed.
// An empty athleteName keeps the stored one.
func (r *MemberRepo) LinkAthlete(ctx context.Context, userID, athleteID, athleteName string) error {
	const query = `
		INSERT INTO members (user_id, strava_athlete_id, strava_athlete_name)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			strava_athlete_id   = excluded.strava_athlete_id,
			strava_athlete_name = CASE WHEN excluded.strava_athlete_name = '' THEN members.strava_athlete_name ELSE excluded.strava_athlete_name END,
			updated_at          = CURRENT_TIMESTAMP`

	if _, err := r.db.Writer.ExecContext(ctx, query, userID, athleteID, athleteName); err != nil {
		return fmt.Errorf("link athlete for %s: %w", userID, err)
	}
	return nil
}

// SetMonthlyGoal sets or clears the member's monthly distance goal.
func (r *MemberRepo) SetMonthlyGoal(ctx context.Context, userID string, goalKm *float64) error {
	const query = `UPDATE members SET monthly_goal_km = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, nullFloat(goalKm), userID)
	if err != nil {
		return fmt.Errorf("set monthly goal for %s: %w", userID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set monthly goal for %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("set monthly goal for %s: %w", userID, driven.ErrMemberNotFound)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMember(s scanner) (*model.Member, error) {
	var (
		m                    model.Member
		isActive             int
		goal                 sql.NullFloat64
		createdAt, updatedAt string
	)
	err := s.Scan(
		&m.UserID, &m.DisplayName, &m.StravaAthleteID, &m.StravaAthleteName,
		&isActive, &goal, &m.Timezone, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.IsActive = isActive != 0
	m.MonthlyGoalKm = floatPtr(goal)
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &m, nil
}

// parseTime accepts both SQLite's CURRENT_TIMESTAMP format and RFC 3339.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
