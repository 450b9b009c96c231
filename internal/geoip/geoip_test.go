package geoip

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/regionscan/internal/models"
)

func TestEnsureDB(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "mmdb-bytes")
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "city.mmdb")

	// Missing file is downloaded
	require.NoError(t, EnsureDB(context.Background(), path, srv.URL, time.Hour))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mmdb-bytes", string(data))
	assert.Equal(t, int32(1), hits.Load())

	// Fresh file is kept
	require.NoError(t, EnsureDB(context.Background(), path, srv.URL, time.Hour))
	assert.Equal(t, int32(1), hits.Load())

	// Outdated file is refreshed
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	require.NoError(t, EnsureDB(context.Background(), path, srv.URL, 24*time.Hour))
	assert.Equal(t, int32(2), hits.Load())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureDBBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "city.mmdb")
	require.Error(t, EnsureDB(context.Background(), path, srv.URL, time.Hour))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o600))

	_, err := Open(path, models.GeoPoint{})
	require.Error(t, err)
}

func TestFallbackProvider(t *testing.T) {
	point := models.GeoPoint{Lat: 41.05, Lon: 29.04}
	p := Fallback(point)
	defer func() { _ = p.Close() }()

	for _, ip := range []string{"8.8.8.8", "127.0.0.1", "::1", "not-an-ip", ""} {
		origin := p.Origin(ip)
		assert.False(t, origin.Resolved, ip)
		assert.Equal(t, point, origin.Point, ip)
	}
}
