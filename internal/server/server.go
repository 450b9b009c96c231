// Package server implements the HTTP server, middleware, and request handlers for the application.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/woozymasta/regionscan/assets"
	"github.com/woozymasta/regionscan/internal/config"
	"github.com/woozymasta/regionscan/internal/scan"
)

// New creates a new Server instance with the scanner, preview source, origin locator and configuration.
func New(scanner *scan.Scanner, previews PreviewSource, origins OriginLocator, cfg *config.Config) *Server {
	return &Server{
		scanner:  scanner,
		previews: previews,
		origins:  origins,
		defaults: scan.Settings{
			ServersToScan: cfg.Scan.Servers,
			BatchSize:     cfg.Scan.BatchSize,
			BatchDelay:    cfg.Scan.BatchDelay,
		}.Clamp(),
		allowedOrigins: cfg.Server.AllowedOrigins,
		hardLimitCount: cfg.RateLimit.Count,
		hardLimitWin:   cfg.RateLimit.Window,
		trustProxy:     cfg.Server.TrustProxy,
		metrics:        !cfg.Server.NoMetrics,
	}
}

// Run configures the HTTP routes and returns the main handler. Background
// housekeeping stops when ctx is done.
func (s *Server) Run(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	limit := s.RateLimitMiddleware(ctx)
	mux.Handle("GET /api/server-regions/{placeId}", limit(http.HandlerFunc(s.handleScan)))
	mux.Handle("GET /api/game-preview/{placeId}", limit(http.HandlerFunc(s.handlePreview)))
	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))

	if s.metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	fileServer := http.FileServer(assets.GetFileSystem())
	mux.Handle("GET /favicon.svg", fileServer)
	mux.Handle("GET /", http.HandlerFunc(s.handleIndex))

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Cache-Control"},
		ExposedHeaders: []string{"X-Scan-ID"},
		MaxAge:         300,
	})

	return s.LoggingMiddleware(corsHandler(mux))
}
