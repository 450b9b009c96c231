// main is the entry point of the RegionScan application.
// It initializes the configuration, logger, GeoIP provider, upstream clients, and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/regionscan/internal/config"
	"github.com/woozymasta/regionscan/internal/fake"
	"github.com/woozymasta/regionscan/internal/geoip"
	"github.com/woozymasta/regionscan/internal/ipwho"
	"github.com/woozymasta/regionscan/internal/logger"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/roblox"
	"github.com/woozymasta/regionscan/internal/scan"
	"github.com/woozymasta/regionscan/internal/server"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Msg("Starting regionscan service...")

	fallback := models.GeoPoint{Lat: cfg.GeoIP.FallbackLat, Lon: cfg.GeoIP.FallbackLon}

	// GeoIP Update
	if !cfg.GeoIP.DisableFetch {
		log.Info().Msg("Checking GeoIP database...")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := geoip.EnsureDB(ctx, cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}
		cancel()
	}

	origins, err := geoip.Open(cfg.GeoIP.Path, fallback)
	if err != nil {
		log.Error().Err(err).
			Float64("lat", fallback.Lat).
			Float64("lon", fallback.Lon).
			Msg("Failed to open GeoIP database, every user is placed at the fallback point")
		origins = geoip.Fallback(fallback)
	}
	defer func() {
		if err := origins.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GeoIP provider")
		}
	}()

	// Synthetic upstream for development
	if cfg.FakeUpstream {
		stop := startFakeUpstream(cfg)
		defer stop()
	}

	log.Info().
		Str("cookie", logger.Fingerprint(cfg.Roblox.Cookie)).
		Str("games_api", cfg.Roblox.GamesURL).
		Str("geolocation_api", cfg.Geolocate.URL).
		Msg("Upstream configured")

	rc := roblox.New(cfg.Roblox)
	scanner := scan.New(rc, ipwho.New(cfg.Geolocate), cfg.Roblox)
	srvHandler := server.New(scanner, rc, origins, cfg)

	// WriteTimeout stays zero, scan streams last minutes
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srvHandler.Run(runCtx),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Open scan streams are cut when the deadline passes
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Server forced to shutdown")
		_ = httpServer.Close()
	}

	log.Info().Msg("Server exited")
}

// startFakeUpstream serves the synthetic upstream on a loopback port and
// points cfg at it. The returned func stops it.
func startFakeUpstream(cfg *config.Config) func() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start fake upstream")
	}

	srv := &http.Server{
		Handler:           fake.New(fake.Options{Servers: 250, GeoMiss: map[int]bool{7: true, 42: true}}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Fake upstream failed")
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	fake.Wire(cfg, baseURL)
	log.Warn().Str("url", baseURL).Msg("Using fake upstream, results are synthetic")

	return func() { _ = srv.Close() }
}
