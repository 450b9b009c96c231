// Package scan discovers the public servers of a place, locates each of them
// and streams the progress of the whole run as events.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/woozymasta/regionscan/internal/config"
	"github.com/woozymasta/regionscan/internal/metrics"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/roblox"
	"github.com/woozymasta/regionscan/internal/upstream"
)

// State is a phase of one scan.
type State int

// Scan states in the order they are entered.
const (
	StateInit State = iota
	StateFetchingMetadata
	StateListingServers
	StateLocating
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFetchingMetadata:
		return "fetching_metadata"
	case StateListingServers:
		return "listing_servers"
	case StateLocating:
		return "locating"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DetailsSource fetches title metadata. A nil result without error means
// the title is unknown.
type DetailsSource interface {
	GameDetails(ctx context.Context, placeID int64) (*models.GameDetails, error)
}

// ServerLocator locates one server instance, returning nil on failure.
type ServerLocator interface {
	Locate(ctx context.Context, inst models.ServerInstance, placeID int64, origin models.GeoPoint) *models.LocatedServer
}

// Preview is title metadata the caller already holds from an earlier
// preview lookup. Non-zero fields fill gaps in the fetched details.
type Preview struct {
	ThumbnailURL string
	Visits       int64
}

// Request describes one scan.
type Request struct {
	// ID tags the scan in logs; a random one is used when empty.
	ID string

	// PlaceID is the raw public place identifier as received.
	PlaceID string

	Settings Settings
	Origin   models.GeoPoint
	Preview  Preview
}

// Scanner runs scans.
type Scanner struct {
	Details   DetailsSource
	Directory *Directory
	Locator   ServerLocator

	// PageSize is the number of servers requested per listing page.
	PageSize int
}

// New wires a Scanner to the Roblox APIs and a geolocation service. The
// session cookie of cfg is used for every join handshake.
func New(rc *roblox.Client, geo Geolocator, cfg config.Roblox) *Scanner {
	return &Scanner{
		Details:   rc,
		Directory: &Directory{Lister: rc, PageDelay: cfg.PageDelay},
		Locator:   &Locator{Joiner: rc, Geo: geo, Credential: cfg.Cookie},
		PageSize:  cfg.PageSize,
	}
}

// Start launches the scan described by req and returns its event stream.
// Progress events arrive in order and the stream ends with exactly one
// complete or error event, after which the channel is closed. When ctx is
// done the scan stops, no terminal event is sent and the channel is closed.
func (s *Scanner) Start(ctx context.Context, req Request) <-chan models.Event {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	logger := zerolog.Ctx(ctx).With().
		Str("scan_id", req.ID).
		Str("place_id", req.PlaceID).
		Logger()
	ctx = logger.WithContext(ctx)

	events := make(chan models.Event)
	r := &run{ctx: ctx, events: events, log: &logger, started: time.Now()}

	go func() {
		defer close(events)
		defer r.recover()

		s.run(r, req)
	}()

	return events
}

func (s *Scanner) run(r *run, req Request) {
	placeID, err := ParsePlaceID(req.PlaceID)
	if err != nil {
		r.log.Warn().Msg("Invalid PlaceID received")
		metrics.ScansTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		r.send(models.ErrorEvent("Invalid PlaceID"))
		return
	}

	settings := req.Settings.Clamp()
	r.log.Info().
		Int("servers", settings.ServersToScan).
		Int("batch_size", settings.BatchSize).
		Dur("batch_delay", settings.BatchDelay).
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Msg("Scan started")

	r.enter(StateFetchingMetadata)
	if !r.send(models.ProgressEvent(r.progress.listing(0, 1), "Fetching game details...")) {
		r.canceled()
		return
	}
	details := s.details(r.ctx, placeID, req.Preview)

	r.enter(StateListingServers)
	instances, err := s.Directory.List(r.ctx, placeID, settings.ServersToScan, s.PageSize,
		func(pages, maxPages, total int) {
			msg := fmt.Sprintf("Fetching server list (%d/%d)...", total, settings.ServersToScan)
			r.send(models.ProgressEvent(r.progress.listing(pages, maxPages), msg))
		})
	if err != nil {
		r.fail(err)
		return
	}

	if len(instances) == 0 {
		r.log.Warn().Msg("No public servers found")
		r.send(models.ProgressEvent(r.progress.done(), "Scan complete: No public servers found."))
		r.complete(details, []models.LocatedServer{})
		return
	}

	r.enter(StateLocating)
	res := RunBatches(r.ctx, instances, settings.BatchSize, settings.BatchDelay,
		func(ctx context.Context, inst models.ServerInstance) *models.LocatedServer {
			return s.Locator.Locate(ctx, inst, placeID, req.Origin)
		},
		func(located, total int) {
			msg := fmt.Sprintf("Geolocating servers (%d/%d)...", located, total)
			r.send(models.ProgressEvent(r.progress.locating(located, total), msg))
		})

	if r.ctx.Err() != nil {
		r.canceled()
		return
	}

	r.log.Info().
		Dur("duration", time.Since(r.started)).
		Int("found", len(instances)).
		Int("located", res.SuccessCount).
		Int("failed", res.FailCount).
		Msg("Scan completed")

	r.send(models.ProgressEvent(r.progress.done(), "Scan complete!"))
	r.complete(details, res.Located)
}

// details fetches title metadata, degrading to an empty value on failure,
// and merges the caller supplied preview into it.
func (s *Scanner) details(ctx context.Context, placeID int64, preview Preview) models.GameDetails {
	var details models.GameDetails

	d, err := s.Details.GameDetails(ctx, placeID)
	switch {
	case err != nil:
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to fetch game details, continuing without them")
	case d != nil:
		details = *d
	}

	if details.ThumbnailURL == "" {
		details.ThumbnailURL = preview.ThumbnailURL
	}
	if details.Visits == 0 {
		details.Visits = preview.Visits
	}

	return details
}

// run is the mutable state of one scan, owned by its goroutine.
type run struct {
	ctx      context.Context
	events   chan<- models.Event
	log      *zerolog.Logger
	started  time.Time
	progress progress
	state    State
}

func (r *run) enter(state State) {
	r.log.Debug().Stringer("from", r.state).Stringer("to", state).Msg("Scan state changed")
	r.state = state
}

// send delivers e unless the scan context is done first.
func (r *run) send(e models.Event) bool {
	if r.ctx.Err() != nil {
		return false
	}

	select {
	case r.events <- e:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *run) complete(details models.GameDetails, servers []models.LocatedServer) {
	r.enter(StateComplete)
	if !r.send(models.CompleteEvent(models.ScanResult{GameDetails: details, Servers: servers})) {
		r.canceled()
		return
	}

	metrics.ScansTotal.WithLabelValues(metrics.OutcomeComplete).Inc()
	metrics.ScanDuration.Observe(time.Since(r.started).Seconds())
}

func (r *run) fail(err error) {
	if r.ctx.Err() != nil && upstream.Classify(err) == upstream.KindCanceled {
		r.canceled()
		return
	}

	r.log.Error().Err(err).Stringer("state", r.state).Msg("Scan failed")
	r.abort(upstream.Reason(err))
}

// abort ends the scan with an error event carrying msg.
func (r *run) abort(msg string) {
	r.enter(StateFailed)
	metrics.ScansTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	metrics.ScanDuration.Observe(time.Since(r.started).Seconds())

	r.send(models.ErrorEvent(msg))
}

func (r *run) canceled() {
	r.log.Info().Dur("duration", time.Since(r.started)).Msg("Scan canceled by client")
	metrics.ScansTotal.WithLabelValues(metrics.OutcomeCanceled).Inc()
}

// recover turns a panic into the terminal error event. It must be deferred.
func (r *run) recover() {
	p := recover()
	if p == nil {
		return
	}

	r.log.Error().Interface("panic", p).Stringer("state", r.state).Msg("Scan panicked")
	if r.state == StateComplete || r.state == StateFailed {
		return
	}
	r.abort("Internal server error")
}
