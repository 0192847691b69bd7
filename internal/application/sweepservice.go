package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
	"github.com/ericfisherdev/clubsync/internal/observability"
)

// MemberSyncer runs one member's pass over the current month.
type MemberSyncer interface {
	SyncMemberCurrentMonth(ctx context.Context, member model.Member) (*model.SyncResult, error)
}

// SweepConfig tunes the batch sweep.
type SweepConfig struct {
	Interval       time.Duration // Scheduler period; 0 disables the ticker.
	Timeout        time.Duration // Per-sweep deadline; 0 means none.
	Concurrency    int
	MaxAttempts    int           // Attempts per user for retryable failures.
	RetryBaseDelay time.Duration // Doubled after every attempt.
	MaxBackoff     time.Duration // Longer suggested waits fail the user instead.
}

// DefaultSweepConfig returns the production defaults.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:       time.Hour,
		Timeout:        10 * time.Minute,
		Concurrency:    3,
		MaxAttempts:    3,
		RetryBaseDelay: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

type sweepRequest struct {
	done chan sweepResponse
}

type sweepResponse struct {
	summary *model.SweepSummary
	err     error
}

// SweepService syncs every eligible member with bounded concurrency. One
// member's failure never stops the others.
type SweepService struct {
	members   driven.MemberStore
	syncer    MemberSyncer
	cfg       SweepConfig
	now       func() time.Time
	triggerCh chan sweepRequest
}

// NewSweepService creates a SweepService. Zero config fields take the defaults.
func NewSweepService(members driven.MemberStore, syncer MemberSyncer, cfg SweepConfig) *SweepService {
	def := DefaultSweepConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &SweepService{
		members:   members,
		syncer:    syncer,
		cfg:       cfg,
		now:       time.Now,
		triggerCh: make(chan sweepRequest),
	}
}

// Start runs sweeps on the configured interval and serves Trigger requests,
// so sweeps never overlap. It blocks until ctx is canceled.
func (s *SweepService) Start(ctx context.Context) {
	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweep scheduler stopped")
			return
		case <-tick:
			if _, err := s.RunSweep(ctx); err != nil {
				slog.Error("scheduled sweep failed", "error", err)
			}
		case req := <-s.triggerCh:
			summary, err := s.RunSweep(ctx)
			req.done <- sweepResponse{summary: summary, err: err}
		}
	}
}

// Trigger asks the scheduler loop for an immediate sweep and waits for it.
// The sweep itself runs under the scheduler's context, so abandoning the wait
// does not cancel it.
func (s *SweepService) Trigger(ctx context.Context) (*model.SweepSummary, error) {
	req := sweepRequest{done: make(chan sweepResponse, 1)}

	select {
	case s.triggerCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-req.done:
		return resp.summary, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunSweep syncs every eligible member once. It fails only when the member
// list cannot be loaded; per-user failures are reported in the summary.
func (s *SweepService) RunSweep(ctx context.Context) (*model.SweepSummary, error) {
	summary := &model.SweepSummary{RunID: uuid.NewString(), StartedAt: s.now()}
	logger := slog.With("sweep_id", summary.RunID)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	members, err := s.members.ListEligible(ctx)
	if err != nil {
		observability.ObserveSweep("precondition_failed", s.now().Sub(summary.StartedAt), s.now())
		return nil, fmt.Errorf("%w: list eligible members: %w", ErrPreconditionFailed, err)
	}
	logger.Info("sweep started", "users", len(members), "concurrency", s.cfg.Concurrency)

	results := make([]model.UserSyncResult, len(members))

	// A plain group: one user's failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for i, member := range members {
		g.Go(func() error {
			results[i] = s.syncUser(ctx, logger, member)
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = s.now()
	summary.PerUserResults = results
	for _, r := range results {
		if r.Attempts > 0 {
			summary.ProcessedCount++
		}
	}

	observability.ObserveSweep("completed", summary.FinishedAt.Sub(summary.StartedAt), summary.FinishedAt)
	logger.Info("sweep complete",
		"users", len(members),
		"processed", summary.ProcessedCount,
		"failed", summary.Failed(),
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
	)

	return summary, nil
}

// syncUser runs one member's pass, retrying rate limits and transient
// failures with exponential backoff up to MaxAttempts.
func (s *SweepService) syncUser(ctx context.Context, logger *slog.Logger, member model.Member) model.UserSyncResult {
	out := model.UserSyncResult{UserID: member.UserID}
	logger = logger.With("user_id", member.UserID)

	if err := ctx.Err(); err != nil {
		return s.fail(out, err)
	}

	policy := s.retryPolicy(logger)
	result, err := backoff.RetryNotifyWithData(func() (*model.SyncResult, error) {
		out.Attempts++
		result, err := s.syncer.SyncMemberCurrentMonth(ctx, member)
		if err != nil && !ErrorKindOf(err).Retryable() {
			return nil, backoff.Permanent(err)
		}
		policy.lastErr = err
		return result, err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.Info("retrying user sync", "kind", ErrorKindOf(err), "attempt", out.Attempts, "wait", wait)
	})
	if err != nil {
		logger.Error("user sync failed", "kind", ErrorKindOf(err), "attempts", out.Attempts, "error", err)
		return s.fail(out, err)
	}

	out.Success = true
	out.Result = result
	observability.ObserveUserSync(true, "")
	return out
}

func (s *SweepService) fail(out model.UserSyncResult, err error) model.UserSyncResult {
	out.Success = false
	out.ErrorKind = ErrorKindOf(err)
	out.Error = err.Error()
	observability.ObserveUserSync(false, string(out.ErrorKind))
	return out
}

// retryPolicy doubles RetryBaseDelay per attempt and stops after MaxAttempts.
func (s *SweepService) retryPolicy(logger *slog.Logger) *sweepBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.cfg.RetryBaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0

	return &sweepBackOff{
		next:     backoff.WithMaxRetries(exp, uint64(s.cfg.MaxAttempts-1)),
		maxDelay: s.cfg.MaxBackoff,
		logger:   logger,
	}
}

// sweepBackOff honors a provider-suggested wait from the last error and gives
// up on the user when the wait would exceed maxDelay.
type sweepBackOff struct {
	next     backoff.BackOff
	maxDelay time.Duration
	lastErr  error
	logger   *slog.Logger
}

func (b *sweepBackOff) NextBackOff() time.Duration {
	delay := b.next.NextBackOff()
	if delay == backoff.Stop {
		return backoff.Stop
	}

	var rl *driven.RateLimitError
	if errors.As(b.lastErr, &rl) && rl.RetryAfter > 0 {
		delay = rl.RetryAfter
	}
	if delay > b.maxDelay {
		b.logger.Warn("retry wait exceeds cap, skipping user", "kind", ErrorKindOf(b.lastErr), "wait", delay)
		return backoff.Stop
	}
	return delay
}

func (b *sweepBackOff) Reset() {
	b.next.Reset()
	b.lastErr = nil
}
