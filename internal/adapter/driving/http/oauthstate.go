package httphandler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"
)

const (
	oauthStateCookie = "strava_oauth_state"
	oauthStateTTL    = 10 * time.Minute
	oauthStateBytes  = 32
)

// issueOAuthState sets a short-lived state cookie and returns its value for
// the authorize URL.
func issueOAuthState(w http.ResponseWriter, secure bool) string {
	state := generateToken()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode, // the callback is a cross-site top-level redirect
		Secure:   secure,
	})
	return state
}

// consumeOAuthState clears the state cookie and reports whether it matched
// the state echoed back by the provider.
func consumeOAuthState(w http.ResponseWriter, r *http.Request, secure bool) bool {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	echoed := r.URL.Query().Get("state")
	return echoed != "" && subtle.ConstantTimeCompare([]byte(echoed), []byte(cookie.Value)) == 1
}

func generateToken() string {
	b := make([]byte, oauthStateBytes)
	if _, err := rand.Read(b); err != nil {
		panic("oauth state: failed to generate random token: " + err.Error())
	}
	return hex.EncodeToString(b)
}
