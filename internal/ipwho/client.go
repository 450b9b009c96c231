// Package ipwho is a client for the ipwho.is IP geolocation API, guarded by a
// circuit breaker and an optional request pacer.
package ipwho

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/woozymasta/regionscan/internal/config"
	"github.com/woozymasta/regionscan/internal/metrics"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/upstream"
	"golang.org/x/time/rate"
)

const breakerName = "ipwho"

// ErrLookupFailed is returned when the service answered but could not locate the address.
var ErrLookupFailed = errors.New("geolocation lookup failed")

// Location is the subset of an ipwho.is answer used by the scanner.
type Location struct {
	Country     string
	CountryCode string
	Region      string
	City        string
	Point       models.GeoPoint
}

type response struct {
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Success     bool    `json:"success"`
}

// Client looks up IP addresses.
type Client struct {
	http    *upstream.Client
	cb      *gobreaker.CircuitBreaker[*Location]
	limiter *rate.Limiter
	baseURL string
}

// New builds a client from the geolocation configuration group.
func New(cfg config.Geolocate) *Client {
	c := &Client{
		http:    upstream.New(breakerName, cfg.Timeout),
		baseURL: strings.TrimRight(cfg.URL, "/"),
	}

	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	c.cb = gobreaker.NewCircuitBreaker[*Location](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		// Lookup misses and canceled callers do not count against the service
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrLookupFailed) ||
				upstream.Classify(err) == upstream.KindCanceled
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return c
}

// Lookup geolocates ip. It fails with ErrLookupFailed when the service does
// not know the address, with gobreaker.ErrOpenState while the breaker is open,
// and with an *upstream.StatusError on HTTP errors.
func (c *Client) Lookup(ctx context.Context, ip string) (*Location, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return c.cb.Execute(func() (*Location, error) {
		var resp response
		if err := c.http.GetJSON(ctx, c.baseURL+"/"+url.PathEscape(ip), nil, &resp); err != nil {
			return nil, err
		}

		if !resp.Success {
			return nil, fmt.Errorf("%w for %s: %s", ErrLookupFailed, ip, resp.Message)
		}

		return &Location{
			Country:     resp.Country,
			CountryCode: resp.CountryCode,
			Region:      resp.Region,
			City:        resp.City,
			Point:       models.GeoPoint{Lat: resp.Latitude, Lon: resp.Longitude},
		}, nil
	})
}

// State returns the current breaker state.
func (c *Client) State() gobreaker.State {
	return c.cb.State()
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
