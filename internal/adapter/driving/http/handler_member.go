package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

const (
	defaultActivityDays = 30
	maxActivityDays     = 365
)

// ListActivities returns the current member's stored activities from the last
// ?days= days (default 30), newest first.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	days := defaultActivityDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxActivityDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	to := h.now().UTC()
	from := to.AddDate(0, 0, -days)

	activities, err := h.activities.ListByUser(r.Context(), userID, from, to.Add(time.Second))
	if err != nil {
		h.logger.Error("failed to list activities", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ActivityResponse, 0, len(activities))
	for _, a := range activities {
		resp = append(resp, toActivityResponse(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SetGoal sets or clears the current member's monthly distance goal.
func (h *Handler) SetGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req SetGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "monthly_goal_km must be greater than 0 and at most 10000")
		return
	}

	if err := h.members.SetMonthlyGoal(r.Context(), userID, req.MonthlyGoalKm); err != nil {
		if errors.Is(err, driven.ErrMemberNotFound) {
			writeError(w, http.StatusNotFound, "member not found")
			return
		}
		h.logger.Error("failed to set monthly goal", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, req)
}
