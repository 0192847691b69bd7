package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUserSync(t *testing.T) {
	before := testutil.ToFloat64(userSyncs.WithLabelValues("failure", "RefreshFailed"))

	ObserveUserSync(false, "RefreshFailed")

	after := testutil.ToFloat64(userSyncs.WithLabelValues("failure", "RefreshFailed"))
	assert.InDelta(t, 1, after-before, 1e-9)
}

func TestObserveProviderRequest_StatusClass(t *testing.T) {
	tests := []struct {
		status int
		class  string
	}{
		{status: 200, class: "2xx"},
		{status: 429, class: "4xx"},
		{status: 503, class: "5xx"},
		{status: 0, class: "error"},
	}

	for _, tt := range tests {
		before := testutil.ToFloat64(providerRequests.WithLabelValues("activities", tt.class))
		ObserveProviderRequest("activities", tt.status)
		after := testutil.ToFloat64(providerRequests.WithLabelValues("activities", tt.class))
		assert.InDelta(t, 1, after-before, 1e-9, "status %d", tt.status)
	}
}

func TestObserveHTTPRequest(t *testing.T) {
	route := "POST /api/v1/strava/sync"
	before := testutil.ToFloat64(httpRequests.WithLabelValues(route, "429"))

	ObserveHTTPRequest(route, 429, 120*time.Millisecond)

	after := testutil.ToFloat64(httpRequests.WithLabelValues(route, "429"))
	assert.InDelta(t, 1, after-before, 1e-9)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(httpDuration), 1)
}

func TestObserveSweep_SetsLastCompleted(t *testing.T) {
	finished := time.Unix(1_770_000_000, 0)

	ObserveSweep("completed", 3*time.Second, finished)

	assert.InDelta(t, 1_770_000_000, testutil.ToFloat64(sweepLastSuccess), 1e-9)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	ObserveTokenRefresh(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "clubsync_token_refreshes_total")
}
