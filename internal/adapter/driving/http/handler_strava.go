package httphandler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ericfisherdev/clubsync/internal/application"
	"github.com/ericfisherdev/clubsync/internal/domain/model"
)

// Connect starts the OAuth flow: it sets the state cookie and redirects the
// member to the Strava authorize page.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if _, err := h.users.ResolveCurrentUser(r); err != nil {
		redirectTo(w, r, "/login", url.Values{"error": {"Please login first"}, "redirect": {"/profile"}})
		return
	}

	state := issueOAuthState(w, h.opts.SecureCookies)
	http.Redirect(w, r, h.authorizer.AuthCodeURL(state, h.redirectURI(r)), http.StatusFound)
}

// Callback completes the OAuth flow and sends the member back to their profile.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stateOK := consumeOAuthState(w, r, h.opts.SecureCookies)

	if oauthErr := q.Get("error"); oauthErr != "" {
		h.logger.Warn("strava authorization declined", "error", oauthErr)
		profileError(w, r, oauthErr)
		return
	}
	if !stateOK {
		h.logger.Warn("strava callback with invalid state")
		profileError(w, r, "Invalid OAuth state")
		return
	}

	code := q.Get("code")
	if code == "" {
		profileError(w, r, "Missing authorization code")
		return
	}

	userID, err := h.users.ResolveCurrentUser(r)
	if err != nil {
		redirectTo(w, r, "/login", url.Values{"error": {"Please login first"}, "redirect": {"/profile"}})
		return
	}

	if _, err := h.connector.Connect(r.Context(), userID, code, h.redirectURI(r)); err != nil {
		h.logger.Error("strava connect failed", "user_id", userID, "error", err)
		if errors.Is(err, application.ErrPersistence) {
			profileError(w, r, "Failed to save Strava connection")
			return
		}
		profileError(w, r, "Authentication failed")
		return
	}

	redirectTo(w, r, "/profile", url.Values{"strava_connected": {"true"}})
}

// Status reports the current member's Strava connection state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.syncer.CheckConnectionStatus(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to check strava connection", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to check connection")
		return
	}

	writeJSON(w, http.StatusOK, toConnectionStatusResponse(status))
}

// RefreshToken rotates the current member's token pair on demand.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	expiresAt, err := h.connector.RefreshNow(r.Context(), userID)
	if err != nil {
		kind := application.ErrorKindOf(err)
		h.logger.Error("manual token refresh failed", "user_id", userID, "kind", kind, "error", err)

		status, message := syncErrorStatus(kind)
		switch kind {
		case model.ErrorKindNoCredential:
			status, message = http.StatusNotFound, "No refresh token found"
		case model.ErrorKindPersistence:
			message = "Failed to update tokens"
		}
		writeJSON(w, status, SyncErrorResponse{Success: false, Error: message, ErrorKind: string(kind)})
		return
	}

	writeJSON(w, http.StatusOK, RefreshTokenResponse{
		Success:   true,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// Sync runs a sync for the current member's current month.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.syncer.SyncUserActivitiesForCurrentMonth(r.Context(), userID)
	if err != nil {
		kind := application.ErrorKindOf(err)
		h.logger.Error("manual sync failed", "user_id", userID, "kind", kind, "error", err)
		status, message := syncErrorStatus(kind)
		writeJSON(w, status, SyncErrorResponse{Success: false, Error: message, ErrorKind: string(kind)})
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Success: true,
		Message: "Sync completed",
		Data:    toSyncResultResponse(*result),
	})
}

// syncErrorStatus maps a failure kind to the HTTP status and message shown to the member.
func syncErrorStatus(kind model.ErrorKind) (int, string) {
	switch kind {
	case model.ErrorKindNoCredential:
		return http.StatusBadRequest, "Strava is not connected"
	case model.ErrorKindRefreshFailed, model.ErrorKindUnauthorized, model.ErrorKindExchangeFailed:
		return http.StatusUnauthorized, "Strava authorization expired, please reconnect"
	case model.ErrorKindRateLimited:
		return http.StatusTooManyRequests, "Strava rate limit reached, try again later"
	case model.ErrorKindTransient:
		return http.StatusBadGateway, "Strava is temporarily unavailable"
	case model.ErrorKindCanceled:
		return http.StatusServiceUnavailable, "Sync was interrupted"
	default:
		return http.StatusInternalServerError, "Sync failed"
	}
}

func profileError(w http.ResponseWriter, r *http.Request, message string) {
	redirectTo(w, r, "/profile", url.Values{"error": {message}})
}

func redirectTo(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusFound)
}
