package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/woozymasta/regionscan/internal/models"
)

// Origin is the best-effort location of a requesting user.
type Origin struct {
	City     string
	Country  string
	Point    models.GeoPoint
	Resolved bool
}

// Provider wraps the GeoIP2 City database reader to locate requesting users.
type Provider struct {
	db       *geoip2.Reader
	fallback models.GeoPoint
}

// Open initializes the GeoIP database reader from a specific file path.
// Addresses that cannot be located resolve to fallback.
func Open(path string, fallback models.GeoPoint) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db, fallback: fallback}, nil
}

// Fallback returns a provider without a database that always answers with point.
func Fallback(point models.GeoPoint) *Provider {
	return &Provider{fallback: point}
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	if p.db == nil {
		return nil
	}

	return p.db.Close()
}

// Origin looks up the coordinates for a given IP address string. Loopback,
// private and unknown addresses resolve to the fallback point with Resolved unset.
func (p *Provider) Origin(ipStr string) Origin {
	fallback := Origin{Point: p.fallback}

	if p.db == nil {
		return fallback
	}

	ip := net.ParseIP(ipStr)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return fallback
	}

	record, err := p.db.City(ip)
	if err != nil {
		return fallback
	}

	// The database answers unknown networks with an empty record
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return fallback
	}

	return Origin{
		City:     record.City.Names["en"],
		Country:  record.Country.IsoCode,
		Point:    models.GeoPoint{Lat: record.Location.Latitude, Lon: record.Location.Longitude},
		Resolved: true,
	}
}
