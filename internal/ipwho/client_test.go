package ipwho

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/regionscan/internal/config"
	"github.com/woozymasta/regionscan/internal/upstream"
)

func newTestClient(t *testing.T, h http.HandlerFunc, rps float64) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(config.Geolocate{URL: srv.URL + "/", Timeout: time.Second, RPS: rps, Burst: 1})
}

func TestLookupSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/128.116.1.2", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"ip": "128.116.1.2", "success": true, "type": "IPv4",
			"country": "United States", "country_code": "US",
			"region": "Virginia", "city": "Ashburn",
			"latitude": 39.0437567, "longitude": -77.4874416
		}`)
	}, 0)

	loc, err := c.Lookup(context.Background(), "128.116.1.2")
	require.NoError(t, err)
	assert.Equal(t, "United States", loc.Country)
	assert.Equal(t, "US", loc.CountryCode)
	assert.Equal(t, "Virginia", loc.Region)
	assert.Equal(t, "Ashburn", loc.City)
	assert.InDelta(t, 39.0437567, loc.Point.Lat, 1e-9)
	assert.InDelta(t, -77.4874416, loc.Point.Lon, 1e-9)
}

func TestLookupMissDoesNotTrip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"ip": "10.0.0.1", "success": false, "message": "Reserved range"}`)
	}, 0)

	for i := 0; i < 20; i++ {
		_, err := c.Lookup(context.Background(), "10.0.0.1")
		require.ErrorIs(t, err, ErrLookupFailed)
		assert.Contains(t, err.Error(), "Reserved range")
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestLookupBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, 0)

	for i := 0; i < 10; i++ {
		_, err := c.Lookup(context.Background(), "1.1.1.1")
		assert.True(t, upstream.IsRateLimited(err))
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.Lookup(context.Background(), "1.1.1.1")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(10), hits.Load())
}

func TestLookupPacing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success": true}`)
	}, 1)

	_, err := c.Lookup(context.Background(), "1.1.1.1")
	require.NoError(t, err)

	// Burst of one is spent, the next call must wait about a second
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Lookup(ctx, "1.1.1.1")
	require.Error(t, err)
}
