package server

import (
	"context"
	"time"

	"github.com/woozymasta/regionscan/internal/geoip"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/scan"
)

// PreviewSource fetches title cards. A nil preview without error means the
// title does not exist.
type PreviewSource interface {
	GamePreview(ctx context.Context, placeID int64) (*models.GamePreview, error)
}

// OriginLocator resolves a requesting IP address to a map position.
type OriginLocator interface {
	Origin(ip string) geoip.Origin
}

// Server holds the dependencies and configuration required to handle HTTP requests.
type Server struct {
	// scanner runs the server region scans streamed by the scan endpoint.
	scanner *scan.Scanner

	// previews answers the game preview endpoint.
	previews PreviewSource

	// origins places the requesting user on the map.
	// Unresolvable addresses yield the configured fallback point.
	origins OriginLocator

	// defaults are the scan settings used for omitted or malformed query parameters.
	defaults scan.Settings

	// allowedOrigins lists the CORS origins permitted to call the API.
	allowedOrigins []string

	// hardLimitCount is the maximum number of requests allowed per IP address
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool

	// metrics exposes the Prometheus registry on /metrics
	metrics bool
}
