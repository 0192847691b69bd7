package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
	"github.com/ericfisherdev/clubsync/internal/observability"
)

var _ driven.StravaActivities = (*Client)(nil)

// Client implements driven.StravaActivities against the Strava REST API.
type Client struct {
	baseURL   string
	feed      *http.Client // Activity feed; per-user URLs collide, so no cache.
	detail    *http.Client // Activity detail; ETag-cached, URLs are unique per activity.
	sanitizer *bluemonday.Policy
}

// NewClient creates a Client with the following transport stack:
//  1. httpcache (conditional requests for activity details only)
//  2. rate limiter (client-side pacing shared by every request)
//  3. http.DefaultTransport
func NewClient(baseURL string, limiter *rate.Limiter, timeout time.Duration) *Client {
	paced := &pacedTransport{base: http.DefaultTransport, limiter: limiter}

	cache := httpcache.NewMemoryCacheTransport()
	cache.Transport = paced

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		feed:      &http.Client{Transport: paced, Timeout: timeout},
		detail:    &http.Client{Transport: cache, Timeout: timeout},
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// NewClientWithHTTPClient creates a Client that sends every request through
// httpClient. Intended for tests against an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		feed:      httpClient,
		detail:    httpClient,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// ListActivities fetches one page of the authenticated athlete's activities.
func (c *Client) ListActivities(ctx context.Context, accessToken string, page driven.ActivityPage) ([]model.RawActivity, error) {
	q := url.Values{}
	if !page.Before.IsZero() {
		q.Set("before", strconv.FormatInt(page.Before.Unix(), 10))
	}
	if !page.After.IsZero() {
		q.Set("after", strconv.FormatInt(page.After.Unix(), 10))
	}
	q.Set("page", strconv.Itoa(page.Page))
	q.Set("per_page", strconv.Itoa(page.PerPage))

	body, err := c.get(ctx, c.feed, "activities", accessToken, "/athlete/activities?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("listing activities (page %d): %w", page.Page, err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decoding activities (page %d): %w", page.Page, err)
	}

	activities := make([]model.RawActivity, 0, len(items))
	for _, item := range items {
		activity, err := c.decodeActivity(item)
		if err != nil {
			return nil, fmt.Errorf("decoding activities (page %d): %w", page.Page, err)
		}
		activities = append(activities, activity)
	}

	slog.Debug("strava activities page fetched", "page", page.Page, "count", len(activities))
	return activities, nil
}

// GetActivity fetches the detailed view of one activity.
func (c *Client) GetActivity(ctx context.Context, accessToken, externalID string) (*model.RawActivity, error) {
	body, err := c.get(ctx, c.detail, "activity_detail", accessToken, "/activities/"+url.PathEscape(externalID))
	if err != nil {
		return nil, fmt.Errorf("getting activity %s: %w", externalID, err)
	}

	activity, err := c.decodeActivity(body)
	if err != nil {
		return nil, fmt.Errorf("decoding activity %s: %w", externalID, err)
	}
	return &activity, nil
}

func (c *Client) get(ctx context.Context, httpClient *http.Client, endpoint, accessToken, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		observability.ObserveProviderRequest(endpoint, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", driven.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	observability.ObserveProviderRequest(endpoint, resp.StatusCode)
	logRateLimit(resp, endpoint)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", driven.ErrTransient, err)
	}

	if err := checkResponse(resp, body, time.Now()); err != nil {
		return nil, err
	}
	return body, nil
}

// checkResponse maps a non-2xx response onto the provider error taxonomy.
func checkResponse(resp *http.Response, body []byte, now time.Time) error {
	switch status := resp.StatusCode; {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", driven.ErrUnauthorized, truncate(string(body), 200))
	case status == http.StatusTooManyRequests:
		return &driven.RateLimitError{RetryAfter: retryAfter(resp.Header, now)}
	case status >= 500:
		return fmt.Errorf("%w: status %d", driven.ErrTransient, status)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, truncate(string(body), 200))
	}
}

// retryAfter derives a wait from Retry-After, or from Strava's
// X-RateLimit-Usage/Limit pairs ("15min,daily") when a window is exhausted.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil && at.After(now) {
			return at.Sub(now)
		}
	}

	usage := parsePair(h.Get("X-RateLimit-Usage"))
	limit := parsePair(h.Get("X-RateLimit-Limit"))
	if usage == nil || limit == nil {
		return 0
	}

	utc := now.UTC()
	if limit[1] > 0 && usage[1] >= limit[1] {
		midnight := time.Date(utc.Year(), utc.Month(), utc.Day()+1, 0, 0, 0, 0, time.UTC)
		return midnight.Sub(utc)
	}
	if limit[0] > 0 && usage[0] >= limit[0] {
		return utc.Truncate(15 * time.Minute).Add(15 * time.Minute).Sub(utc)
	}
	return 0
}

func parsePair(v string) []int {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return nil
	}
	pair := make([]int, 2)
	for i := range pair {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return nil
		}
		pair[i] = n
	}
	return pair
}

// logRateLimit logs the provider's rate-limit usage when present.
func logRateLimit(resp *http.Response, endpoint string) {
	usage := resp.Header.Get("X-RateLimit-Usage")
	if usage == "" {
		return
	}
	slog.Debug("strava rate limit",
		"endpoint", endpoint,
		"usage", usage,
		"limit", resp.Header.Get("X-RateLimit-Limit"),
		"status", resp.StatusCode,
	)
}

// activityJSON is the subset of Strava's SummaryActivity/DetailedActivity we keep.
type activityJSON struct {
	ID                 json.Number `json:"id"`
	Name               string      `json:"name"`
	Type               string      `json:"type"`
	SportType          string      `json:"sport_type"`
	Distance           float64     `json:"distance"`
	MovingTime         int         `json:"moving_time"`
	ElapsedTime        int         `json:"elapsed_time"`
	TotalElevationGain *float64    `json:"total_elevation_gain"`
	AverageHeartrate   *float64    `json:"average_heartrate"`
	AverageCadence     *float64    `json:"average_cadence"`
	StartDate          time.Time   `json:"start_date"`
	StartDateLocal     string      `json:"start_date_local"`
	Timezone           string      `json:"timezone"`
	Map                struct {
		SummaryPolyline string `json:"summary_polyline"`
		Polyline        string `json:"polyline"`
	} `json:"map"`
}

func (c *Client) decodeActivity(raw json.RawMessage) (model.RawActivity, error) {
	var a activityJSON
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.RawActivity{}, err
	}
	if a.ID.String() == "" {
		return model.RawActivity{}, errors.New("activity without id")
	}

	polyline := a.Map.SummaryPolyline
	if polyline == "" {
		polyline = a.Map.Polyline
	}

	// Strava writes the local wall-clock time with a misleading "Z" suffix.
	startLocal, _ := time.Parse("2006-01-02T15:04:05Z", a.StartDateLocal)

	return model.RawActivity{
		ExternalID:               a.ID.String(),
		Name:                     html.UnescapeString(c.sanitizer.Sanitize(a.Name)),
		Type:                     a.Type,
		SportType:                a.SportType,
		DistanceMeters:           a.Distance,
		MovingTimeSeconds:        a.MovingTime,
		ElapsedTimeSeconds:       a.ElapsedTime,
		AverageHeartRate:         a.AverageHeartrate,
		AverageCadence:           a.AverageCadence,
		TotalElevationGainMeters: a.TotalElevationGain,
		StartDate:                a.StartDate.UTC(),
		StartDateLocal:           startLocal,
		Timezone:                 a.Timezone,
		MapSummaryPolyline:       polyline,
		Payload:                  append([]byte(nil), raw...),
	}, nil
}

// pacedTransport waits on a shared limiter before each request.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}
	return t.base.RoundTrip(req)
}

func observeTokenCall(err error) {
	status := http.StatusOK
	if err != nil {
		status = 0
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
	}
	observability.ObserveProviderRequest("token", status)
}
