package server

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/regionscan/assets"
	"github.com/woozymasta/regionscan/internal/scan"
	"github.com/woozymasta/regionscan/internal/vars"
)

// readAsset loads embedded files.
var readAsset = assets.ReadFile

type message struct {
	Message string `json:"message"`
}

// handleIndex serves the landing page (index.html).
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	content, err := readAsset("index.html")
	if err != nil {
		log.Error().Err(err).Msg("Failed to read index page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(content)
}

// handleVersion returns the build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// handlePreview returns the title card of a place: name, player count,
// visits and icon.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	placeID, err := scan.ParsePlaceID(r.PathValue("placeId"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid PlaceID format")
		return
	}

	preview, err := s.previews.GamePreview(r.Context(), placeID)
	if err != nil {
		log.Error().Err(err).Int64("place_id", placeID).Msg("Failed to fetch game preview")
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if preview == nil {
		writeMessage(w, http.StatusNotFound, "Game not found")
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, message{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
