package httphandler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/clubsync/internal/application"
)

const debugSyncUsage = "Usage: /api/v1/debug/sync?userId=<id>&month=<1-12>&year=<YYYY>&run=1 (run=1 to execute)"

// CronSync runs a batch sync for every eligible member. The caller must send
// the shared secret in the x-internal-secret header.
func (h *Handler) CronSync(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("x-internal-secret")
	if h.opts.CronSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.opts.CronSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	summary, err := h.sweeper.Trigger(r.Context())
	if err != nil {
		h.logger.Error("cron sweep failed", "error", err)
		if errors.Is(err, application.ErrPreconditionFailed) {
			writeError(w, http.StatusInternalServerError, "Failed to load members")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "Sweep did not complete")
		return
	}

	writeJSON(w, http.StatusOK, toSweepResponse(*summary))
}

// DebugSync syncs one member for an arbitrary month. Without run=1 it only
// validates the parameters; running requires AllowDebugSync.
func (h *Handler) DebugSync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	month, _ := strconv.Atoi(q.Get("month"))
	year, _ := strconv.Atoi(q.Get("year"))
	run := q.Get("run") == "1"

	if userID == "" || month == 0 || year == 0 {
		writeError(w, http.StatusBadRequest, debugSyncUsage)
		return
	}

	if run && !h.opts.AllowDebugSync {
		writeError(w, http.StatusForbidden, "Debug sync disabled. Set CLUBSYNC_ALLOW_DEBUG_SYNC=true to enable running this endpoint.")
		return
	}

	if !run {
		writeJSON(w, http.StatusOK, DebugSyncResponse{OK: true, Message: "Dry-run mode. Add &run=1 to execute."})
		return
	}

	result, err := h.syncer.SyncUserActivities(r.Context(), userID, time.Month(month), year)
	if err != nil {
		h.logger.Error("debug sync failed", "user_id", userID, "month", month, "year", year, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, application.ErrInvalidPeriod) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, DebugSyncResponse{OK: false, Error: err.Error()})
		return
	}

	resp := toSyncResultResponse(*result)
	writeJSON(w, http.StatusOK, DebugSyncResponse{OK: true, Result: &resp})
}
