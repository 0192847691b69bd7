package httphandler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned when the request carries no valid member session.
var ErrNoSession = errors.New("no valid session")

// maxCookieChunks bounds how many split session cookies are reassembled.
const maxCookieChunks = 8

// CookieReader is the part of *http.Request a UserResolver needs.
type CookieReader interface {
	Cookie(name string) (*http.Cookie, error)
}

// UserResolver identifies the member behind a request.
type UserResolver interface {
	ResolveCurrentUser(cookies CookieReader) (string, error)
}

// JWTUserResolver reads the session access token from cookies and returns its
// subject. The token is either the raw value of the access cookie or embedded
// in a session blob cookie.
type JWTUserResolver struct {
	secret       []byte
	accessCookie string
	blobCookie   string
}

var _ UserResolver = (*JWTUserResolver)(nil)

// NewJWTUserResolver creates a resolver that verifies HS256 tokens with secret.
// An empty secret rejects every request. blobCookie may be empty.
func NewJWTUserResolver(secret, accessCookie, blobCookie string) *JWTUserResolver {
	return &JWTUserResolver{
		secret:       []byte(secret),
		accessCookie: accessCookie,
		blobCookie:   blobCookie,
	}
}

// ResolveCurrentUser returns the member id of the session, or ErrNoSession.
func (r *JWTUserResolver) ResolveCurrentUser(cookies CookieReader) (string, error) {
	if len(r.secret) == 0 {
		return "", ErrNoSession
	}

	token := cookieValue(cookies, r.accessCookie)
	if token == "" && r.blobCookie != "" {
		token = accessTokenFromBlob(readChunked(cookies, r.blobCookie))
	}
	if token == "" {
		return "", ErrNoSession
	}

	return r.subject(token)
}

func (r *JWTUserResolver) subject(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", ErrNoSession
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrNoSession
	}
	return sub, nil
}

func cookieValue(cookies CookieReader, name string) string {
	if name == "" {
		return ""
	}
	c, err := cookies.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// readChunked returns the cookie name, or the concatenation of name.0, name.1, ...
// when the session was split across several cookies.
func readChunked(cookies CookieReader, name string) string {
	if v := cookieValue(cookies, name); v != "" {
		return v
	}

	var b strings.Builder
	for i := range maxCookieChunks {
		v := cookieValue(cookies, name+"."+strconv.Itoa(i))
		if v == "" {
			break
		}
		b.WriteString(v)
	}
	return b.String()
}

// accessTokenFromBlob extracts the access token from a session blob: a JSON
// object with access_token, a JSON array whose first element is the token,
// either optionally prefixed with "base64-".
func accessTokenFromBlob(raw string) string {
	if raw == "" {
		return ""
	}
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		raw = unescaped
	}

	if rest, ok := strings.CutPrefix(raw, "base64-"); ok {
		decoded, err := decodeBase64(rest)
		if err != nil {
			return ""
		}
		raw = string(decoded)
	}

	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "{"):
		var obj struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return ""
		}
		return obj.AccessToken
	case strings.HasPrefix(raw, "["):
		var arr []any
		if err := json.Unmarshal([]byte(raw), &arr); err != nil || len(arr) == 0 {
			return ""
		}
		token, _ := arr[0].(string)
		return token
	default:
		return ""
	}
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64 session cookie")
}
