package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/regionscan/internal/metrics"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "per-call", r.Header.Get("X-Test"))
		assert.Contains(t, r.Header.Get("User-Agent"), "RegionScan/")
		_, _ = io.WriteString(w, `{"universeId": 42}`)
	}))
	defer srv.Close()

	c := New("test-get", time.Second)
	before := testutil.ToFloat64(metrics.UpstreamRequests.WithLabelValues("test-get", "200"))

	var out struct {
		UniverseID int64 `json:"universeId"`
	}
	err := c.GetJSON(context.Background(), srv.URL, http.Header{"X-Test": {"per-call"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.UniverseID)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.UpstreamRequests.WithLabelValues("test-get", "200")))
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"gameId":"abc"}`, string(body))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := New("test-post", time.Second).PostJSON(context.Background(), srv.URL, nil, map[string]string{"gameId": "abc"}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestStatusErrors(t *testing.T) {
	cases := []struct {
		body    string
		message string
		status  int
		kind    Kind
	}{
		{status: http.StatusTooManyRequests, body: `{"errors":[{"code":0,"message":"Too many requests"}]}`, message: "Too many requests", kind: KindRateLimited},
		{status: http.StatusUnauthorized, body: `{"errors":[{"message":"Authorization has been denied"}]}`, message: "Authorization has been denied", kind: KindAuth},
		{status: http.StatusForbidden, body: ``, kind: KindAuth},
		{status: http.StatusNotFound, body: `{"message":"not here"}`, message: "not here", kind: KindNotFound},
		{status: http.StatusBadRequest, body: `garbage`, kind: KindNotFound},
		{status: http.StatusInternalServerError, body: `{"errors":[{"message":"InternalServerError"}]}`, message: "InternalServerError", kind: KindOther},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			err := New("games", time.Second).GetJSON(context.Background(), srv.URL, nil, nil)
			require.Error(t, err)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.status, se.Status)
			assert.Equal(t, tc.message, se.Message)
			assert.Equal(t, tc.kind, Classify(err))
			assert.Equal(t, tc.kind == KindRateLimited, IsRateLimited(err))

			if tc.message != "" {
				assert.Equal(t, tc.message, Reason(err))
			} else {
				assert.Equal(t, err.Error(), Reason(err))
			}
		})
	}
}

func TestClassifyNonStatus(t *testing.T) {
	assert.Equal(t, KindNone, Classify(nil))
	assert.Equal(t, KindCanceled, Classify(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, KindCanceled, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindOther, Classify(errors.New("boom")))
	assert.Equal(t, KindRateLimited, Classify(fmt.Errorf("page 2: %w", &StatusError{API: "games", Status: 429})))
	assert.Equal(t, "rate_limited", KindRateLimited.String())
}

func TestDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data": [`)
	}))
	defer srv.Close()

	var out map[string]any
	err := New("games", time.Second).GetJSON(context.Background(), srv.URL, nil, &out)
	require.Error(t, err)
	assert.Equal(t, KindOther, Classify(err))
}

func TestContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New("games", time.Second).GetJSON(ctx, srv.URL, nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindCanceled, Classify(err))
}
