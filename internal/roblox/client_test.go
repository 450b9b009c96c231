package roblox

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/regionscan/internal/config"
	"github.com/woozymasta/regionscan/internal/upstream"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return New(config.Roblox{
		APIsURL:       srv.URL,
		GamesURL:      srv.URL + "/",
		GameJoinURL:   srv.URL,
		ThumbnailsURL: srv.URL,
		Timeout:       time.Second,
	})
}

func TestGameDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /universes/v1/places/920587237/universe", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"universeId": 383310974}`)
	})
	mux.HandleFunc("GET /v1/games", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "383310974", r.URL.Query().Get("universeIds"))
		_, _ = io.WriteString(w, `{"data":[{"id":383310974,"name":"Adopt Me!","playing":120000,"visits":40000000000,"creator":{"name":"Uplift Games"}}]}`)
	})

	details, err := newTestClient(t, mux).GameDetails(context.Background(), 920587237)
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "Adopt Me!", details.Name)
	assert.Equal(t, "Uplift Games", details.CreatorName)
	assert.Equal(t, int64(120000), details.Playing)
	assert.Equal(t, int64(40000000000), details.Visits)
	assert.True(t, details.Fetched)
}

func TestGameDetailsNoUniverse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /universes/v1/places/1/universe", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"universeId": null}`)
	})

	details, err := newTestClient(t, mux).GameDetails(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, details)
}

func TestGamePreview(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /universes/v1/places/606849621/universe", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"universeId": 245662005}`)
	})
	mux.HandleFunc("GET /v1/games", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"name":"Jailbreak","playing":20000,"visits":7000000000}]}`)
	})
	mux.HandleFunc("GET /v1/games/icons", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "512x512", r.URL.Query().Get("size"))
		assert.Equal(t, "Png", r.URL.Query().Get("format"))
		_, _ = io.WriteString(w, `{"data":[{"targetId":245662005,"state":"Completed","imageUrl":"https://tr.rbxcdn.com/icon.png"}]}`)
	})

	preview, err := newTestClient(t, mux).GamePreview(context.Background(), 606849621)
	require.NoError(t, err)
	require.NotNil(t, preview)
	assert.Equal(t, "Jailbreak", preview.Name)
	assert.Equal(t, int64(20000), preview.Playing)
	assert.Equal(t, int64(7000000000), preview.Visits)
	require.NotNil(t, preview.ThumbnailURL)
	assert.Equal(t, "https://tr.rbxcdn.com/icon.png", *preview.ThumbnailURL)
}

func TestGamePreviewNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /universes/v1/places/5/universe", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"errors":[{"code":0,"message":"Place not found"}]}`)
	})

	preview, err := newTestClient(t, mux).GamePreview(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, preview)
}

func TestGamePreviewUpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /universes/v1/places/5/universe", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"universeId": 9}`)
	})
	mux.HandleFunc("GET /v1/games", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /v1/games/icons", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	})

	_, err := newTestClient(t, mux).GamePreview(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, upstream.KindOther, upstream.Classify(err))
}

func TestPublicServers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/games/920587237/servers/Public", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("excludeFullGames"))
		assert.Equal(t, "100", q.Get("limit"))

		if q.Get("cursor") == "" {
			_, _ = io.WriteString(w, `{"previousPageCursor":null,"nextPageCursor":"abc==","data":[{"id":"s1","maxPlayers":48,"playing":12,"fps":59.9,"ping":80}]}`)
			return
		}
		assert.Equal(t, "abc==", q.Get("cursor"))
		_, _ = io.WriteString(w, `{"previousPageCursor":"abc==","nextPageCursor":null,"data":[{"id":"s2","maxPlayers":48,"playing":47}]}`)
	})

	c := newTestClient(t, mux)

	page, err := c.PublicServers(context.Background(), 920587237, 100, "")
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "s1", page.Data[0].ID)
	assert.Equal(t, 12, page.Data[0].Playing)
	assert.Equal(t, 48, page.Data[0].MaxPlayers)
	assert.Equal(t, "abc==", page.Cursor())

	page, err = c.PublicServers(context.Background(), 920587237, 100, page.Cursor())
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "s2", page.Data[0].ID)
	assert.Empty(t, page.Cursor())
}

func TestJoinEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/join-game-instance", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Roblox/WinInet", r.Header.Get("User-Agent"))
		assert.Equal(t, ".ROBLOSECURITY=cookie", r.Header.Get("Cookie"))
		assert.Equal(t, "https://www.roblox.com/games/42/", r.Header.Get("Referer"))
		assert.Equal(t, "https://www.roblox.com", r.Header.Get("Origin"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(42), body["placeId"])
		assert.Equal(t, false, body["isTeleport"])
		assert.Equal(t, body["gameId"], body["gameJoinAttemptId"])

		switch body["gameId"] {
		case "with-ip":
			_, _ = io.WriteString(w, `{"jobId":"with-ip","status":2,"joinScript":{"UdmuxEndpoints":[{"Address":"128.116.1.2","Port":55000},{"Address":"128.116.1.3"}]}}`)
		case "no-ip":
			_, _ = io.WriteString(w, `{"jobId":null,"status":12,"joinScript":null,"message":"Game is full"}`)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	})

	c := newTestClient(t, mux)

	addr, err := c.JoinEndpoint(context.Background(), 42, "with-ip", "cookie")
	require.NoError(t, err)
	assert.Equal(t, "128.116.1.2", addr)

	addr, err = c.JoinEndpoint(context.Background(), 42, "no-ip", "cookie")
	require.NoError(t, err)
	assert.Empty(t, addr)

	_, err = c.JoinEndpoint(context.Background(), 42, "denied", "cookie")
	assert.Equal(t, upstream.KindAuth, upstream.Classify(err))
}
