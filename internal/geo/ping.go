// Package geo estimates network latency from geographic distance and server load.
package geo

import (
	"math"
	"math/rand/v2"

	"github.com/woozymasta/regionscan/internal/models"
)

const (
	// EarthRadiusKm is the mean Earth radius used by Distance.
	EarthRadiusKm = 6371.0

	// kmPerMs converts distance to round trip time over fiber (~200,000 km/s, both ways).
	kmPerMs = 100.0

	// overheadMs models handshake and processing on top of propagation.
	overheadMs = 40.0

	loadWeightMs  = 25.0
	loadNoiseMs   = 10.0
	jitterRangeMs = 15.0
)

// Distance returns the great-circle distance between a and b in kilometers (haversine).
func Distance(a, b models.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// Rounding can push h slightly past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Estimator produces ping estimates. The zero value draws noise from math/rand/v2.
type Estimator struct {
	// Rand returns a uniform value in [0, 1). Nil means rand.Float64.
	Rand func() float64
}

// Ping estimates the latency in milliseconds between origin and server for a
// server currently holding playing out of maxPlayers. A maxPlayers of zero
// contributes no load penalty.
func (e Estimator) Ping(origin, server models.GeoPoint, playing, maxPlayers int) int {
	random := e.Rand
	if random == nil {
		random = rand.Float64
	}

	base := Distance(origin, server) / kmPerMs

	var loadRatio float64
	if maxPlayers > 0 {
		loadRatio = float64(playing) / float64(maxPlayers)
	}
	loadPenalty := loadRatio*loadWeightMs + random()*loadNoiseMs
	jitter := random() * jitterRangeMs

	ms := math.Round(base + loadPenalty + jitter + overheadMs)
	if ms < 0 {
		return 0
	}

	return int(ms)
}
