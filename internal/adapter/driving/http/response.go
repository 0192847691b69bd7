package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ConnectionStatusResponse is the JSON representation of a Strava connection check.
type ConnectionStatusResponse struct {
	Connected   bool    `json:"connected"`
	TokenValid  bool    `json:"token_valid"`
	NeedsReauth bool    `json:"needs_reauth"`
	ExpiresAt   *string `json:"expires_at"`
}

// SyncResultResponse is the JSON representation of a member's month after a sync.
type SyncResultResponse struct {
	ActualKm        float64  `json:"actual_km"`
	Pace            *string  `json:"pace"`
	AvgPaceSeconds  int      `json:"avg_pace_seconds"`
	TotalActivities int      `json:"total_activities"`
	ProgressPercent *float64 `json:"progress_percent"`
	AvgHeartRate    *float64 `json:"avg_heart_rate"`
	AvgCadence      *float64 `json:"avg_cadence"`
	ElevationGainM  float64  `json:"total_elevation_gain_m"`
	OutOfRangePace  int      `json:"out_of_range_pace"`
	PeriodStart     string   `json:"period_start"`
	PeriodEnd       string   `json:"period_end"`
	InsertedCount   int      `json:"inserted"`
	UpdatedCount    int      `json:"updated"`
	UnchangedCount  int      `json:"unchanged"`
}

// SyncResponse is the body of a successful manual sync.
type SyncResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Data    SyncResultResponse `json:"data"`
}

// RefreshTokenResponse is the body of a successful manual token refresh.
type RefreshTokenResponse struct {
	Success   bool   `json:"success"`
	ExpiresAt string `json:"expires_at"`
}

// SyncErrorResponse is the body of a failed manual sync.
type SyncErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// UserSyncResponse is one member's entry in a sweep response.
type UserSyncResponse struct {
	UserID    string              `json:"user_id"`
	Success   bool                `json:"success"`
	Attempts  int                 `json:"attempts"`
	Result    *SyncResultResponse `json:"result,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// SweepResponse is the body of the cron sync endpoint.
type SweepResponse struct {
	Success   bool               `json:"success"`
	RunID     string             `json:"run_id"`
	Processed int                `json:"processed"`
	Failed    int                `json:"failed"`
	Results   []UserSyncResponse `json:"results"`
}

// DebugSyncResponse is the body of the debug sync endpoint.
type DebugSyncResponse struct {
	OK      bool                `json:"ok"`
	Message string              `json:"message,omitempty"`
	Result  *SyncResultResponse `json:"result,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// ActivityResponse is the JSON representation of a stored activity.
type ActivityResponse struct {
	ID                  int64    `json:"id"`
	ExternalID          string   `json:"external_id"`
	Name                string   `json:"name"`
	Type                string   `json:"type"`
	DistanceKm          float64  `json:"distance_km"`
	MovingTimeSeconds   int      `json:"moving_time_seconds"`
	ElapsedTimeSeconds  int      `json:"elapsed_time_seconds"`
	PaceSecondsPerKm    int      `json:"pace_seconds_per_km"`
	AverageHeartRate    *float64 `json:"average_heartrate"`
	AverageCadence      *float64 `json:"average_cadence"`
	ElevationGainMeters *float64 `json:"total_elevation_gain"`
	SummaryPolyline     string   `json:"summary_polyline,omitempty"`
	StartDate           string   `json:"start_date"`
}

// SetGoalRequest is the JSON body for the monthly goal endpoint. A null goal clears it.
type SetGoalRequest struct {
	MonthlyGoalKm *float64 `json:"monthly_goal_km" validate:"omitempty,gt=0,lte=10000"`
}

func toConnectionStatusResponse(s model.ConnectionStatus) ConnectionStatusResponse {
	resp := ConnectionStatusResponse{
		Connected:   s.Connected,
		TokenValid:  s.TokenValid,
		NeedsReauth: s.NeedsReauth,
	}
	if s.ExpiresAt != nil {
		v := s.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &v
	}
	return resp
}

func toSyncResultResponse(r model.SyncResult) SyncResultResponse {
	resp := SyncResultResponse{
		ActualKm:        r.TotalKm,
		AvgPaceSeconds:  r.AvgPaceSecondsPerKm,
		TotalActivities: r.TotalActivities,
		ProgressPercent: r.ProgressPercent,
		AvgHeartRate:    r.AvgHeartRate,
		AvgCadence:      r.AvgCadence,
		ElevationGainM:  r.TotalElevationGainMeters,
		OutOfRangePace:  r.OutOfRangePace,
		PeriodStart:     r.Window.Start.Format(time.RFC3339),
		PeriodEnd:       r.Window.End.Format(time.RFC3339),
		InsertedCount:   r.Inserted,
		UpdatedCount:    r.Updated,
		UnchangedCount:  r.Unchanged,
	}
	if pace := model.FormatPace(r.AvgPaceSecondsPerKm); pace != "" {
		resp.Pace = &pace
	}
	return resp
}

func toSweepResponse(s model.SweepSummary) SweepResponse {
	results := make([]UserSyncResponse, 0, len(s.PerUserResults))
	for _, u := range s.PerUserResults {
		entry := UserSyncResponse{
			UserID:    u.UserID,
			Success:   u.Success,
			Attempts:  u.Attempts,
			ErrorKind: string(u.ErrorKind),
			Error:     u.Error,
		}
		if u.Result != nil {
			r := toSyncResultResponse(*u.Result)
			entry.Result = &r
		}
		results = append(results, entry)
	}

	return SweepResponse{
		Success:   true,
		RunID:     s.RunID,
		Processed: s.ProcessedCount,
		Failed:    s.Failed(),
		Results:   results,
	}
}

func toActivityResponse(a model.Activity) ActivityResponse {
	pace, _ := model.PacePerKm(a.EffectiveMovingSeconds(), a.DistanceMeters/1000)
	return ActivityResponse{
		ID:                  a.ID,
		ExternalID:          a.ExternalID,
		Name:                a.Name,
		Type:                a.ActivityType,
		DistanceKm:          model.Round2(a.DistanceMeters / 1000),
		MovingTimeSeconds:   a.MovingTimeSeconds,
		ElapsedTimeSeconds:  a.ElapsedTimeSeconds,
		PaceSecondsPerKm:    pace,
		AverageHeartRate:    a.AverageHeartRate,
		AverageCadence:      a.AverageCadence,
		ElevationGainMeters: a.TotalElevationGainMeters,
		SummaryPolyline:     a.MapSummaryPolyline,
		StartDate:           a.StartDate.UTC().Format(time.RFC3339),
	}
}
