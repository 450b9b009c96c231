package scan

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Accepted ranges for the per-request tunables.
const (
	MinServers    = 100
	MaxServers    = 300
	MinBatchSize  = 1
	MaxBatchSize  = 20
	MaxBatchDelay = 5000 * time.Millisecond
)

// ErrInvalidPlaceID is returned for place ids that are not positive integers.
var ErrInvalidPlaceID = errors.New("invalid PlaceID")

// Settings are the caller tunable knobs of one scan.
type Settings struct {
	// ServersToScan is how many public servers to list and locate.
	ServersToScan int

	// BatchSize caps concurrent locate calls.
	BatchSize int

	// BatchDelay is the pause between locate batches.
	BatchDelay time.Duration
}

// Clamp returns s with every field forced into its accepted range.
func (s Settings) Clamp() Settings {
	s.ServersToScan = clamp(s.ServersToScan, MinServers, MaxServers)
	s.BatchSize = clamp(s.BatchSize, MinBatchSize, MaxBatchSize)
	s.BatchDelay = max(0, min(MaxBatchDelay, s.BatchDelay))

	return s
}

// ParseSettings reads serversToScan, batchSize and delayBetweenGeolocationBatches
// (milliseconds) from query values. Missing or malformed values take the
// matching field of defaults; the result is clamped.
func ParseSettings(q url.Values, defaults Settings) Settings {
	s := defaults

	if v, ok := queryInt(q, "serversToScan"); ok {
		s.ServersToScan = v
	}
	if v, ok := queryInt(q, "batchSize"); ok {
		s.BatchSize = v
	}
	if v, ok := queryInt(q, "delayBetweenGeolocationBatches"); ok {
		s.BatchDelay = time.Duration(clamp(v, 0, int(MaxBatchDelay/time.Millisecond))) * time.Millisecond
	}

	return s.Clamp()
}

// ParsePlaceID parses a public place identifier. Only positive base 10
// integers are accepted.
func ParsePlaceID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidPlaceID
	}

	return id, nil
}

func queryInt(q url.Values, key string) (int, bool) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, false
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}

	return v, true
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
