package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/scan"
)

// handleScan streams a server region scan as Server-Sent Events.
// Query params: ?serversToScan=100&batchSize=5&delayBetweenGeolocationBatches=500
// plus the optional cached preview fields thumbnailUrl and visits.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	stream, err := newSSEStream(w)
	if err != nil {
		log.Error().Err(err).Msg("Streaming unsupported")
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ip := GetRealIP(r, s.trustProxy)
	origin := s.origins.Origin(ip)
	q := r.URL.Query()

	req := scan.Request{
		ID:       uuid.NewString(),
		PlaceID:  r.PathValue("placeId"),
		Settings: scan.ParseSettings(q, s.defaults),
		Origin:   origin.Point,
		Preview:  previewFromQuery(q),
	}

	log.Info().
		Str("scan_id", req.ID).
		Str("place_id", req.PlaceID).
		Str("ip", ip).
		Str("city", origin.City).
		Str("country", origin.Country).
		Bool("origin_resolved", origin.Resolved).
		Msg("Scan requested")

	w.Header().Set("X-Scan-ID", req.ID)
	stream.open()

	for event := range s.scanner.Start(r.Context(), req) {
		if err := stream.send(event); err != nil {
			// The request context is canceled once we return, which stops the scan
			log.Debug().Err(err).Str("scan_id", req.ID).Msg("Client went away")
			return
		}
	}
}

// previewFromQuery reads the preview metadata the client cached from the
// preview endpoint. Only http(s) thumbnail URLs are accepted.
func previewFromQuery(q url.Values) scan.Preview {
	var p scan.Preview

	if raw := q.Get("thumbnailUrl"); raw != "" {
		if u, err := url.Parse(raw); err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != "" {
			p.ThumbnailURL = u.String()
		}
	}

	if v, err := strconv.ParseInt(q.Get("visits"), 10, 64); err == nil && v > 0 {
		p.Visits = v
	}

	return p
}

// sseStream writes events to a Server-Sent Events response.
type sseStream struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func newSSEStream(w http.ResponseWriter) (*sseStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	return &sseStream{writer: w, flusher: flusher}, nil
}

// open writes the stream headers.
func (s *sseStream) open() {
	h := s.writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	s.writer.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *sseStream) send(event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.writer, "event: message\ndata: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
