// Package models defines the data structures shared by the scan pipeline and the HTTP API.
package models

import json "github.com/goccy/go-json"

// GeoPoint is a WGS84 coordinate pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ServerInstance is one public game server as listed by the upstream catalog.
type ServerInstance struct {
	ID         string `json:"id"`
	Playing    int    `json:"playing"`
	MaxPlayers int    `json:"maxPlayers"`
}

// LocatedServer is a ServerInstance enriched with its network endpoint,
// geolocation and estimated latency.
type LocatedServer struct {
	ID          string  `json:"id"`
	IP          string  `json:"ip"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Ping        int     `json:"ping"`
	Playing     int     `json:"playing"`
	MaxPlayers  int     `json:"maxPlayers"`
}

// GameDetails is title metadata fetched once per scan.
// A zero value marshals to an empty object.
type GameDetails struct {
	Name         string `json:"name,omitempty"`
	CreatorName  string `json:"creatorName,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Playing      int64  `json:"playing,omitempty"`
	Visits       int64  `json:"visits,omitempty"`

	// Fetched marks metadata returned by upstream; name, playing and visits
	// are then always encoded, zero or not.
	Fetched bool `json:"-"`
}

type partialDetails GameDetails

type fetchedDetails struct {
	Name         string `json:"name"`
	CreatorName  string `json:"creatorName,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Playing      int64  `json:"playing"`
	Visits       int64  `json:"visits"`
}

// MarshalJSON omits unknown fields of degraded metadata only.
func (d GameDetails) MarshalJSON() ([]byte, error) {
	if !d.Fetched {
		return json.Marshal(partialDetails(d))
	}

	return json.Marshal(fetchedDetails{
		Name:         d.Name,
		CreatorName:  d.CreatorName,
		ThumbnailURL: d.ThumbnailURL,
		Playing:      d.Playing,
		Visits:       d.Visits,
	})
}

// GamePreview is the lightweight title card served by the preview endpoint.
type GamePreview struct {
	ThumbnailURL *string `json:"thumbnailUrl"`
	Name         string  `json:"name"`
	Playing      int64   `json:"playing"`
	Visits       int64   `json:"visits"`
}

// ScanResult is the payload of the terminal complete event.
type ScanResult struct {
	GameDetails GameDetails     `json:"gameDetails"`
	Servers     []LocatedServer `json:"servers"`
}
