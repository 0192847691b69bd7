package model

import "time"

// Member is a club member as seen by the sync core. A member is eligible for
// the scheduled sweep when it is active and has a stored credential.
type Member struct {
	UserID            string
	DisplayName       string
	StravaAthleteID   string
	StravaAthleteName string
	IsActive          bool
	MonthlyGoalKm     *float64
	Timezone          string // IANA name; empty means the service default.
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasGoal reports whether a positive monthly distance goal is configured.
func (m Member) HasGoal() bool {
	return m.MonthlyGoalKm != nil && *m.MonthlyGoalKm > 0
}
