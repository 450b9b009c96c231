package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/woozymasta/regionscan/internal/geo"
	"github.com/woozymasta/regionscan/internal/ipwho"
	"github.com/woozymasta/regionscan/internal/metrics"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/upstream"
)

// Soft locate failures that are not upstream errors.
var (
	ErrNoEndpoint = errors.New("join response carried no endpoint")
	ErrGeoMiss    = errors.New("endpoint could not be geolocated")
)

// Joiner performs the join handshake and returns the endpoint address.
type Joiner interface {
	JoinEndpoint(ctx context.Context, placeID int64, serverID, credential string) (string, error)
}

// Geolocator resolves an IP address to a location.
type Geolocator interface {
	Lookup(ctx context.Context, ip string) (*ipwho.Location, error)
}

// Locator turns a server instance into a located server.
type Locator struct {
	Joiner     Joiner
	Geo        Geolocator
	Credential string
	Estimator  geo.Estimator
}

// Locate resolves, geolocates and estimates the ping of one server.
// It never fails: any problem is logged and reported as nil.
func (l *Locator) Locate(ctx context.Context, inst models.ServerInstance, placeID int64, origin models.GeoPoint) *models.LocatedServer {
	server, err := l.locate(ctx, inst, placeID, origin)
	if err != nil {
		logFailure(zerolog.Ctx(ctx), inst.ID, err)
		metrics.ServersTotal.WithLabelValues("failed").Inc()
		return nil
	}

	metrics.ServersTotal.WithLabelValues("located").Inc()
	zerolog.Ctx(ctx).Debug().
		Str("server", server.ID).
		Str("city", server.City).
		Str("country", server.Country).
		Int("ping", server.Ping).
		Msg("Located server")

	return server
}

func (l *Locator) locate(ctx context.Context, inst models.ServerInstance, placeID int64, origin models.GeoPoint) (*models.LocatedServer, error) {
	ip, err := l.Joiner.JoinEndpoint(ctx, placeID, inst.ID, l.Credential)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	if ip == "" {
		return nil, ErrNoEndpoint
	}

	loc, err := l.Geo.Lookup(ctx, ip)
	if err != nil {
		if errors.Is(err, ipwho.ErrLookupFailed) {
			return nil, fmt.Errorf("%w: %w", ErrGeoMiss, err)
		}
		return nil, fmt.Errorf("geolocate %s: %w", ip, err)
	}

	return &models.LocatedServer{
		ID:          inst.ID,
		IP:          ip,
		Ping:        l.Estimator.Ping(origin, loc.Point, inst.Playing, inst.MaxPlayers),
		Country:     loc.Country,
		CountryCode: loc.CountryCode,
		RegionName:  loc.Region,
		City:        loc.City,
		Lat:         loc.Point.Lat,
		Lon:         loc.Point.Lon,
		Playing:     inst.Playing,
		MaxPlayers:  inst.MaxPlayers,
	}, nil
}

func logFailure(logger *zerolog.Logger, serverID string, err error) {
	switch {
	case errors.Is(err, ErrNoEndpoint):
		logger.Warn().Str("server", serverID).Msg("No IP found for server")
	case errors.Is(err, ErrGeoMiss):
		logger.Warn().Str("server", serverID).Err(err).Msg("Geolocation failed")
	default:
		switch upstream.Classify(err) {
		case upstream.KindAuth:
			logger.Warn().Str("server", serverID).Msg("Join rejected, the session cookie may be invalid")
		case upstream.KindRateLimited:
			logger.Warn().Str("server", serverID).Err(err).Msg("Rate limited while locating server")
		case upstream.KindCanceled:
			logger.Debug().Str("server", serverID).Msg("Locate canceled")
		default:
			logger.Error().Str("server", serverID).Err(err).Msg("Error locating server")
		}
	}
}
