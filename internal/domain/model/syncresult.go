package model

import (
	"fmt"
	"time"
)

// SyncResult summarizes one member's activities over a window after a sync pass.
type SyncResult struct {
	Window                   Window
	TotalKm                  float64
	TotalActivities          int
	AvgPaceSecondsPerKm      int
	ProgressPercent          *float64 // Nil when the member has no monthly goal.
	AvgHeartRate             *float64
	AvgCadence               *float64
	TotalElevationGainMeters float64
	OutOfRangePace           int // Activities whose pace is implausible for running or walking.

	// Reconcile counters for the pass that produced this result.
	Inserted  int
	Updated   int
	Unchanged int
}

// FormatPace renders seconds per km as "m:ss", or "" when pace is zero.
func FormatPace(secondsPerKm int) string {
	if secondsPerKm <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", secondsPerKm/60, secondsPerKm%60)
}

// UserSyncResult is one entry of a sweep summary.
type UserSyncResult struct {
	UserID    string
	Success   bool
	Result    *SyncResult
	ErrorKind ErrorKind
	Error     string
	Attempts  int
}

// SweepSummary is the outcome of one batch sync across all eligible members.
type SweepSummary struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	ProcessedCount int
	PerUserResults []UserSyncResult
}

// Failed returns the number of users whose pass did not succeed.
func (s SweepSummary) Failed() int {
	var n int
	for _, r := range s.PerUserResults {
		if !r.Success {
			n++
		}
	}
	return n
}
