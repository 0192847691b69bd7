package model

import (
	"slices"
	"strings"
	"time"
)

// RawActivity is the provider's copy of one activity, as returned by the
// activity feed or the detail endpoint.
type RawActivity struct {
	ExternalID               string
	Name                     string
	Type                     string
	SportType                string
	DistanceMeters           float64
	MovingTimeSeconds        int
	ElapsedTimeSeconds       int
	AverageHeartRate         *float64
	AverageCadence           *float64
	TotalElevationGainMeters *float64
	StartDate                time.Time
	StartDateLocal           time.Time
	Timezone                 string
	MapSummaryPolyline       string
	Payload                  []byte // Raw provider JSON, archived on change.
}

// NeedsDetail reports whether the feed summary lacks fields that only the
// detail endpoint reliably returns.
func (r RawActivity) NeedsDetail() bool {
	return r.AverageHeartRate == nil ||
		r.AverageCadence == nil ||
		r.TotalElevationGainMeters == nil ||
		r.MapSummaryPolyline == ""
}

// MergeDetail fills fields missing from r with values from detail.
func (r RawActivity) MergeDetail(detail RawActivity) RawActivity {
	if r.AverageHeartRate == nil {
		r.AverageHeartRate = detail.AverageHeartRate
	}
	if r.AverageCadence == nil {
		r.AverageCadence = detail.AverageCadence
	}
	if r.TotalElevationGainMeters == nil {
		r.TotalElevationGainMeters = detail.TotalElevationGainMeters
	}
	if r.MapSummaryPolyline == "" {
		r.MapSummaryPolyline = detail.MapSummaryPolyline
	}
	if len(detail.Payload) > 0 {
		r.Payload = detail.Payload
	}
	return r
}

// MatchesType reports whether the activity's type or sport type is one of types.
// Comparison is case-insensitive. An empty list matches everything.
func (r RawActivity) MatchesType(types []string) bool {
	if len(types) == 0 {
		return true
	}
	return slices.ContainsFunc(types, func(t string) bool {
		return strings.EqualFold(t, r.Type) || strings.EqualFold(t, r.SportType)
	})
}

// ActivityType returns the sport type when present, else the legacy type.
func (r RawActivity) ActivityType() string {
	if r.SportType != "" {
		return r.SportType
	}
	return r.Type
}

// Activity is the locally stored copy of a provider activity, unique by
// (Provider, ExternalID).
type Activity struct {
	ID                       int64
	Provider                 string
	ExternalID               string
	UserID                   string
	Name                     string
	DistanceMeters           float64
	MovingTimeSeconds        int
	ElapsedTimeSeconds       int
	AverageHeartRate         *float64
	AverageCadence           *float64
	TotalElevationGainMeters *float64
	StartDate                time.Time
	ActivityType             string
	MapSummaryPolyline       string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// EffectiveMovingSeconds returns the moving time, falling back to elapsed time
// when the provider reported no moving time.
func (a Activity) EffectiveMovingSeconds() int {
	if a.MovingTimeSeconds > 0 {
		return a.MovingTimeSeconds
	}
	return a.ElapsedTimeSeconds
}

// Merge returns a copy of a with the tracked fields taken from incoming.
// Optional fields absent from incoming keep their stored value.
func (a Activity) Merge(incoming Activity) Activity {
	merged := a
	merged.UserID = incoming.UserID
	merged.Name = incoming.Name
	merged.DistanceMeters = incoming.DistanceMeters
	merged.MovingTimeSeconds = incoming.MovingTimeSeconds
	merged.ElapsedTimeSeconds = incoming.ElapsedTimeSeconds
	merged.StartDate = incoming.StartDate
	merged.ActivityType = incoming.ActivityType
	if incoming.AverageHeartRate != nil {
		merged.AverageHeartRate = incoming.AverageHeartRate
	}
	if incoming.AverageCadence != nil {
		merged.AverageCadence = incoming.AverageCadence
	}
	if incoming.TotalElevationGainMeters != nil {
		merged.TotalElevationGainMeters = incoming.TotalElevationGainMeters
	}
	if incoming.MapSummaryPolyline != "" {
		merged.MapSummaryPolyline = incoming.MapSummaryPolyline
	}
	return merged
}

// SameTrackedFields reports whether a and b agree on every field a sync may change.
func (a Activity) SameTrackedFields(b Activity) bool {
	return a.UserID == b.UserID &&
		a.Name == b.Name &&
		a.DistanceMeters == b.DistanceMeters &&
		a.MovingTimeSeconds == b.MovingTimeSeconds &&
		a.ElapsedTimeSeconds == b.ElapsedTimeSeconds &&
		equalFloatPtr(a.AverageHeartRate, b.AverageHeartRate) &&
		equalFloatPtr(a.AverageCadence, b.AverageCadence) &&
		equalFloatPtr(a.TotalElevationGainMeters, b.TotalElevationGainMeters) &&
		a.StartDate.Equal(b.StartDate) &&
		a.ActivityType == b.ActivityType &&
		a.MapSummaryPolyline == b.MapSummaryPolyline
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
