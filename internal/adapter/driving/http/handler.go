package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
	"github.com/ericfisherdev/clubsync/internal/observability"
)

// callbackPath is where the provider sends the member back after authorizing.
const callbackPath = "/api/v1/strava/callback"

// Syncer runs member syncs on request.
type Syncer interface {
	SyncUserActivitiesForCurrentMonth(ctx context.Context, userID string) (*model.SyncResult, error)
	SyncUserActivities(ctx context.Context, userID string, month time.Month, year int) (*model.SyncResult, error)
	CheckConnectionStatus(ctx context.Context, userID string) (model.ConnectionStatus, error)
}

// Connector manages a member's provider connection.
type Connector interface {
	Connect(ctx context.Context, userID, code, redirectURI string) (*model.TokenBundle, error)
	RefreshNow(ctx context.Context, userID string) (time.Time, error)
}

// Authorizer builds the provider authorize URL.
type Authorizer interface {
	AuthCodeURL(state, redirectURI string) string
}

// SweepTrigger runs a batch sync and waits for its summary.
type SweepTrigger interface {
	Trigger(ctx context.Context) (*model.SweepSummary, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the deployment settings the handlers need.
type Options struct {
	RedirectURL    string // Empty derives the callback URL from the request host.
	CronSecret     string // Empty disables the cron endpoint.
	AllowDebugSync bool
	SecureCookies  bool
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	syncer     Syncer
	connector  Connector
	authorizer Authorizer
	sweeper    SweepTrigger
	members    driven.MemberStore
	activities driven.ActivityStore
	users      UserResolver
	db         Pinger
	opts       Options
	validate   *validator.Validate
	now        func() time.Time
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	syncer Syncer,
	connector Connector,
	authorizer Authorizer,
	sweeper SweepTrigger,
	members driven.MemberStore,
	activities driven.ActivityStore,
	users UserResolver,
	db Pinger,
	opts Options,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		syncer:     syncer,
		connector:  connector,
		authorizer: authorizer,
		sweeper:    sweeper,
		members:    members,
		activities: activities,
		users:      users,
		db:         db,
		opts:       opts,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /api/v1/strava/connect", h.Connect)
	mux.HandleFunc("GET "+callbackPath, h.Callback)
	mux.HandleFunc("GET /api/v1/strava/status", h.Status)
	mux.HandleFunc("POST /api/v1/strava/refresh", h.RefreshToken)
	mux.HandleFunc("POST /api/v1/strava/sync", h.Sync)

	mux.HandleFunc("GET /api/v1/activities", h.ListActivities)
	mux.HandleFunc("PUT /api/v1/me/goal", h.SetGoal)

	mux.HandleFunc("POST /api/v1/cron/strava-sync", h.CronSync)
	mux.HandleFunc("GET /api/v1/debug/sync", h.DebugSync)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check: database unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Time:   h.now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

// currentUser resolves the session, writing a 401 when there is none.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.users.ResolveCurrentUser(r)
	if err != nil {
		h.logger.Debug("session rejected", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusUnauthorized, SyncErrorResponse{Success: false, Error: "Unauthorized - User not authenticated"})
		return "", false
	}
	return userID, true
}

// redirectURI returns the OAuth callback URL for this deployment.
func (h *Handler) redirectURI(r *http.Request) string {
	if h.opts.RedirectURL != "" {
		return h.opts.RedirectURL
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + callbackPath
}
