package scan

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/woozymasta/regionscan/internal/ipwho"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/roblox"
	"github.com/woozymasta/regionscan/internal/upstream"
)

// fakeLister serves total servers in pages; errAt makes the given page
// number (1-based) fail with err.
type fakeLister struct {
	err   error
	calls atomic.Int32
	total int
	errAt int
}

func (f *fakeLister) PublicServers(_ context.Context, _ int64, limit int, cursor string) (roblox.ServerPage, error) {
	n := int(f.calls.Add(1))
	if f.errAt > 0 && n == f.errAt {
		return roblox.ServerPage{}, f.err
	}

	offset := 0
	if cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}

	page := roblox.ServerPage{}
	for i := offset; i < f.total && i < offset+limit; i++ {
		page.Data = append(page.Data, instance(i))
	}

	if next := offset + limit; next < f.total {
		c := strconv.Itoa(next)
		page.NextPageCursor = &c
	}

	return page, nil
}

func instance(i int) models.ServerInstance {
	return models.ServerInstance{ID: fmt.Sprintf("srv-%03d", i), Playing: i % 10, MaxPlayers: 10}
}

func instances(n int) []models.ServerInstance {
	out := make([]models.ServerInstance, n)
	for i := range out {
		out[i] = instance(i)
	}
	return out
}

// fakeJoiner answers every join with an address derived from the server id.
type fakeJoiner struct {
	errs  map[string]error
	empty map[string]bool
	calls atomic.Int32
}

func (f *fakeJoiner) JoinEndpoint(_ context.Context, _ int64, serverID, _ string) (string, error) {
	f.calls.Add(1)
	if err := f.errs[serverID]; err != nil {
		return "", err
	}
	if f.empty[serverID] {
		return "", nil
	}
	return "ip-" + serverID, nil
}

// fakeGeo locates every address except those in miss.
type fakeGeo struct {
	miss  map[string]bool
	calls atomic.Int32
}

func (f *fakeGeo) Lookup(_ context.Context, ip string) (*ipwho.Location, error) {
	f.calls.Add(1)
	if f.miss[ip] {
		return nil, fmt.Errorf("%w for %s: reserved range", ipwho.ErrLookupFailed, ip)
	}
	return &ipwho.Location{
		Country:     "Germany",
		CountryCode: "DE",
		Region:      "Hesse",
		City:        "Frankfurt am Main",
		Point:       models.GeoPoint{Lat: 50.11, Lon: 8.68},
	}, nil
}

type fakeDetails struct {
	details *models.GameDetails
	err     error
	calls   atomic.Int32
}

func (f *fakeDetails) GameDetails(context.Context, int64) (*models.GameDetails, error) {
	f.calls.Add(1)
	return f.details, f.err
}

// recordingLocator records the order of calls.
type recordingLocator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingLocator) Locate(_ context.Context, inst models.ServerInstance, _ int64, _ models.GeoPoint) *models.LocatedServer {
	r.mu.Lock()
	r.ids = append(r.ids, inst.ID)
	r.mu.Unlock()
	return &models.LocatedServer{ID: inst.ID}
}

func statusErr(api string, status int) error {
	return &upstream.StatusError{API: api, Status: status, Message: http.StatusText(status)}
}
