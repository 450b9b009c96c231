// Package fake emulates the Roblox web APIs and the IP geolocation service
// with synthetic data for development and testing.
package fake

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/regionscan/internal/config"
)

// GeoPath is the path prefix the geolocation API is served under.
const GeoPath = "/ipwho"

// Options shape the synthetic world.
type Options struct {
	// NoEndpoint holds server indexes whose join response carries no endpoint.
	NoEndpoint map[int]bool

	// GeoMiss holds server indexes whose address cannot be geolocated.
	GeoMiss map[int]bool

	// Unknown holds place ids that resolve to no universe.
	Unknown map[int64]bool

	// Credential is the accepted session cookie; empty accepts any.
	Credential string

	// Servers is the number of public servers every place has.
	Servers int

	// RateLimitAfter listing pages are served before the listing answers 429.
	// Zero never rate limits.
	RateLimitAfter int
}

type datacenter struct {
	City        string
	Region      string
	Country     string
	CountryCode string
	Lat, Lon    float64
}

// Datacenter locations, the busiest first
var (
	dcHigh = []datacenter{
		{"Ashburn", "Virginia", "United States", "US", 39.0438, -77.4874},
		{"Dallas", "Texas", "United States", "US", 32.7767, -96.7970},
		{"Los Angeles", "California", "United States", "US", 34.0522, -118.2437},
		{"Frankfurt am Main", "Hesse", "Germany", "DE", 50.1109, 8.6821},
		{"Amsterdam", "North Holland", "Netherlands", "NL", 52.3676, 4.9041},
	}
	dcMid = []datacenter{
		{"Miami", "Florida", "United States", "US", 25.7617, -80.1918},
		{"Chicago", "Illinois", "United States", "US", 41.8781, -87.6298},
		{"London", "England", "United Kingdom", "GB", 51.5072, -0.1276},
		{"Paris", "Ile-de-France", "France", "FR", 48.8566, 2.3522},
		{"Singapore", "Singapore", "Singapore", "SG", 1.3521, 103.8198},
	}
	dcLow = []datacenter{
		{"Tokyo", "Tokyo", "Japan", "JP", 35.6762, 139.6503},
		{"Mumbai", "Maharashtra", "India", "IN", 19.0760, 72.8777},
		{"Sydney", "New South Wales", "Australia", "AU", -33.8688, 151.2093},
		{"Warsaw", "Masovian Voivodeship", "Poland", "PL", 52.2297, 21.0122},
		{"Sao Paulo", "Sao Paulo", "Brazil", "BR", -23.5558, -46.6396},
	}
)

// Upstream is an http.Handler serving every upstream API the scanner uses.
type Upstream struct {
	mux   *http.ServeMux
	opts  Options
	pages atomic.Int64
	joins atomic.Int64
}

// New builds a synthetic upstream.
func New(opts Options) *Upstream {
	u := &Upstream{opts: opts, mux: http.NewServeMux()}

	u.mux.HandleFunc("GET /universes/v1/places/{placeId}/universe", u.handleUniverse)
	u.mux.HandleFunc("GET /v1/games", u.handleGames)
	u.mux.HandleFunc("GET /v1/games/icons", u.handleIcons)
	u.mux.HandleFunc("GET /v1/games/{placeId}/servers/Public", u.handleServers)
	u.mux.HandleFunc("POST /v1/join-game-instance", u.handleJoin)
	u.mux.HandleFunc("GET "+GeoPath+"/{ip}", u.handleGeo)

	return u
}

// Wire points every upstream URL of cfg at baseURL, where u is served.
func Wire(cfg *config.Config, baseURL string) {
	baseURL = strings.TrimRight(baseURL, "/")

	cfg.Roblox.APIsURL = baseURL
	cfg.Roblox.GamesURL = baseURL
	cfg.Roblox.GameJoinURL = baseURL
	cfg.Roblox.ThumbnailsURL = baseURL
	cfg.Geolocate.URL = baseURL + GeoPath
}

func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mux.ServeHTTP(w, r)
}

// Pages returns the number of listing pages served so far.
func (u *Upstream) Pages() int64 { return u.pages.Load() }

// Joins returns the number of join handshakes answered so far.
func (u *Upstream) Joins() int64 { return u.joins.Load() }

// ServerID returns the id of server index i of placeID.
func ServerID(placeID int64, i int) string {
	return fmt.Sprintf("%08x-fake-4000-8000-%012x", placeID, i)
}

// ServerIP returns the relay address of server index i.
func ServerIP(i int) string {
	return fmt.Sprintf("128.116.%d.%d", i/250, i%250+1)
}

func serverIndex(id string) (int, bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 5 || parts[1] != "fake" {
		return 0, false
	}

	i, err := strconv.ParseInt(parts[4], 16, 64)
	if err != nil {
		return 0, false
	}

	return int(i), true
}

func ipIndex(raw string) (int, bool) {
	ip := net.ParseIP(raw).To4()
	if ip == nil || ip[0] != 128 || ip[1] != 116 || ip[3] == 0 {
		return 0, false
	}

	return int(ip[2])*250 + int(ip[3]) - 1, true
}

// dc picks the datacenter of server index i, weighted like real traffic.
func dc(i int) datacenter {
	r := rand.New(rand.NewPCG(uint64(i), 0x5eed)) //nolint:gosec

	roll := r.Float32()
	switch {
	case roll < 0.70:
		return dcHigh[r.IntN(len(dcHigh))]
	case roll < 0.90:
		return dcMid[r.IntN(len(dcMid))]
	default:
		return dcLow[r.IntN(len(dcLow))]
	}
}

func players(placeID int64, i int) (playing, maxPlayers int) {
	r := rand.New(rand.NewPCG(uint64(placeID), uint64(i))) //nolint:gosec
	maxPlayers = 20 + 10*r.IntN(4)

	// Full servers are never listed
	return r.IntN(maxPlayers), maxPlayers
}

func placeID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("placeId"), 10, 64)
	return id, err == nil && id > 0
}

func (u *Upstream) handleUniverse(w http.ResponseWriter, r *http.Request) {
	id, ok := placeID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid placeId")
		return
	}

	if u.opts.Unknown[id] {
		writeJSON(w, http.StatusOK, map[string]any{"universeId": nil})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"universeId": id + 1_000_000})
}

func (u *Upstream) handleGames(w http.ResponseWriter, r *http.Request) {
	universeID, err := strconv.ParseInt(r.URL.Query().Get("universeIds"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid universeIds")
		return
	}

	place := universeID - 1_000_000
	var playing int
	for i := range u.opts.Servers {
		p, _ := players(place, i)
		playing += p
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": []map[string]any{{
			"id":      universeID,
			"name":    fmt.Sprintf("Fake Place #%d", place),
			"creator": map[string]any{"name": "RegionScan"},
			"playing": playing,
			"visits":  place * 1000,
		}},
	})
}

func (u *Upstream) handleIcons(w http.ResponseWriter, r *http.Request) {
	universeID := r.URL.Query().Get("universeIds")
	writeJSON(w, http.StatusOK, map[string]any{
		"data": []map[string]any{{
			"targetId": universeID,
			"state":    "Completed",
			"imageUrl": fmt.Sprintf("https://tr.rbxcdn.com/fake/%s/512/512/Image/Png", universeID),
		}},
	})
}

func (u *Upstream) handleServers(w http.ResponseWriter, r *http.Request) {
	id, ok := placeID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "The place is invalid.")
		return
	}

	page := u.pages.Add(1)
	if u.opts.RateLimitAfter > 0 && page > int64(u.opts.RateLimitAfter) {
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	offset, _ := strconv.Atoi(q.Get("cursor"))

	data := make([]map[string]any, 0, limit)
	for i := offset; i < u.opts.Servers && i < offset+limit; i++ {
		playing, maxPlayers := players(id, i)
		data = append(data, map[string]any{
			"id":         ServerID(id, i),
			"maxPlayers": maxPlayers,
			"playing":    playing,
			"fps":        59.9,
			"ping":       50 + i%100,
		})
	}

	var cursor any
	if next := offset + limit; next < u.opts.Servers {
		cursor = strconv.Itoa(next)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"previousPageCursor": nil,
		"nextPageCursor":     cursor,
		"data":               data,
	})
}

func (u *Upstream) handleJoin(w http.ResponseWriter, r *http.Request) {
	u.joins.Add(1)

	if u.opts.Credential != "" && !strings.Contains(r.Header.Get("Cookie"), ".ROBLOSECURITY="+u.opts.Credential) {
		writeError(w, http.StatusUnauthorized, "Authorization has been denied for this request.")
		return
	}

	var req struct {
		GameID  string `json:"gameId"`
		PlaceID int64  `json:"placeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	i, ok := serverIndex(req.GameID)
	if !ok || i >= u.opts.Servers {
		writeJSON(w, http.StatusOK, map[string]any{"status": 12, "message": "The game you requested has ended."})
		return
	}

	endpoints := []map[string]any{}
	if !u.opts.NoEndpoint[i] {
		endpoints = append(endpoints, map[string]any{"Address": ServerIP(i), "Port": 53640 + i%100})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":  req.GameID,
		"status": 2,
		"joinScript": map[string]any{
			"PlaceId":        req.PlaceID,
			"UdmuxEndpoints": endpoints,
		},
	})
}

func (u *Upstream) handleGeo(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	i, ok := ipIndex(ip)
	if !ok || u.opts.GeoMiss[i] {
		writeJSON(w, http.StatusOK, map[string]any{"ip": ip, "success": false, "message": "Reserved range"})
		return
	}

	loc := dc(i)
	writeJSON(w, http.StatusOK, map[string]any{
		"ip":           ip,
		"success":      true,
		"country":      loc.Country,
		"country_code": loc.CountryCode,
		"region":       loc.Region,
		"city":         loc.City,
		"latitude":     loc.Lat,
		"longitude":    loc.Lon,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]any{{"code": 0, "message": message}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write fake upstream response")
	}
}
