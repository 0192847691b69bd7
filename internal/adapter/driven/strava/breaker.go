package strava

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
	"github.com/ericfisherdev/clubsync/internal/observability"
)

var _ driven.StravaActivities = (*BreakerClient)(nil)

// BreakerConfig configures the circuit breaker around the activity client.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Probes allowed while half-open.
	Interval         time.Duration // Closed-state counter reset period.
	Timeout          time.Duration // Open-state duration before half-open.
	FailureThreshold uint32        // Consecutive failures that open the circuit.
}

// DefaultBreakerConfig returns the settings used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "strava-activities",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerClient guards a driven.StravaActivities with a circuit breaker so a
// Strava outage fails the remaining users of a sweep fast.
type BreakerClient struct {
	next driven.StravaActivities
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient wraps next. Token rejections, rate limits and cancellations
// are per-request outcomes and never count against the provider.
func NewBreakerClient(next driven.StravaActivities, cfg BreakerConfig) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("strava circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			observability.SetBreakerState(name, breakerStateValue(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, driven.ErrUnauthorized) ||
				errors.Is(err, driven.ErrRateLimited) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	}
	observability.SetBreakerState(cfg.Name, 0)

	return &BreakerClient{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// ListActivities delegates through the breaker.
func (b *BreakerClient) ListActivities(ctx context.Context, accessToken string, page driven.ActivityPage) ([]model.RawActivity, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.ListActivities(ctx, accessToken, page)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	activities, _ := out.([]model.RawActivity)
	return activities, nil
}

// GetActivity delegates through the breaker.
func (b *BreakerClient) GetActivity(ctx context.Context, accessToken, externalID string) (*model.RawActivity, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.GetActivity(ctx, accessToken, externalID)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	activity, _ := out.(*model.RawActivity)
	return activity, nil
}

// State reports the breaker state for health output.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}

// breakerError marks rejections by an open breaker as transient so the sweep
// treats them like any other provider outage.
func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", driven.ErrTransient, err)
	}
	return err
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
