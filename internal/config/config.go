// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/regionscan/internal/logger"
	"github.com/woozymasta/regionscan/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"REGIONSCAN"`
	Roblox    Roblox        `group:"Roblox API Options" namespace:"roblox" env-namespace:"REGIONSCAN_ROBLOX"`
	Geolocate Geolocate     `group:"Geolocation API Options" namespace:"geolocate" env-namespace:"REGIONSCAN_GEOLOCATE"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"REGIONSCAN_GEOIP"`
	Scan      Scan          `group:"Scan Defaults" namespace:"scan" env-namespace:"REGIONSCAN_SCAN"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"REGIONSCAN_RATE_LIMIT"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"REGIONSCAN_LOG"`

	FakeUpstream bool `long:"fake-upstream" hidden:"true"`
	Version      bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address        string   `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":3000"`
	AllowedOrigins []string `long:"allowed-origin" env:"ALLOWED_ORIGINS" description:"CORS allowed origins" default:"*" env-delim:","`
	TrustProxy     bool     `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust CF-Connecting-IP and X-Forwarded-For headers"`
	NoMetrics      bool     `long:"no-metrics" env:"NO_METRICS" description:"Do not expose Prometheus metrics on /metrics"`
}

// Roblox holds the upstream Roblox API configuration.
type Roblox struct {
	// betteralign:ignore

	Cookie        string        `short:"c" long:"cookie" env:"COOKIE" description:"Session cookie (.ROBLOSECURITY) used for the join handshake"`
	CookieFile    string        `long:"cookie-file" env:"COOKIE_FILE" description:"JSON file with a robloxCookie key, used when --roblox-cookie is empty" default:"config.json"`
	APIsURL       string        `long:"apis-url" env:"APIS_URL" description:"Universe API base URL" default:"https://apis.roblox.com"`
	GamesURL      string        `long:"games-url" env:"GAMES_URL" description:"Games API base URL" default:"https://games.roblox.com"`
	GameJoinURL   string        `long:"gamejoin-url" env:"GAMEJOIN_URL" description:"Game join API base URL" default:"https://gamejoin.roblox.com"`
	ThumbnailsURL string        `long:"thumbnails-url" env:"THUMBNAILS_URL" description:"Thumbnails API base URL" default:"https://thumbnails.roblox.com"`
	Timeout       time.Duration `long:"timeout" env:"TIMEOUT" description:"Per-request timeout" default:"10s"`
	PageSize      int           `long:"page-size" env:"PAGE_SIZE" description:"Servers requested per listing page (10, 25, 50 or 100)" default:"100"`
	PageDelay     time.Duration `long:"page-delay" env:"PAGE_DELAY" description:"Delay between listing pages" default:"1s"`
}

// Geolocate holds the external IP geolocation API configuration.
type Geolocate struct {
	// betteralign:ignore

	URL     string        `long:"url" env:"URL" description:"IP geolocation API base URL" default:"https://ipwho.is"`
	Timeout time.Duration `long:"timeout" env:"TIMEOUT" description:"Per-request timeout" default:"10s"`
	RPS     float64       `long:"rps" env:"RPS" description:"Max lookups per second, 0 disables pacing" default:"0"`
	Burst   int           `long:"burst" env:"BURST" description:"Lookup burst size when pacing is enabled" default:"20"`
}

// GeoIP holds MaxMind GeoIP configuration used to locate the requesting user.
type GeoIP struct {
	// betteralign:ignore

	Path         string        `short:"g" long:"path" env:"PATH" description:"Path to City MMDB file" default:"regionscan.mmdb"`
	URL          string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-City.mmdb"`
	Interval     time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	FallbackLat  float64       `long:"fallback-lat" env:"FALLBACK_LAT" description:"Latitude used when the user IP cannot be located" default:"41.05"`
	FallbackLon  float64       `long:"fallback-lon" env:"FALLBACK_LON" description:"Longitude used when the user IP cannot be located" default:"29.04"`
	DisableFetch bool          `long:"no-download" env:"NO_DOWNLOAD" description:"Never download the MMDB file"`
}

// Scan holds defaults for per-request scan settings.
type Scan struct {
	// betteralign:ignore

	Servers    int           `long:"servers" env:"SERVERS" description:"Default number of servers to scan" default:"100"`
	BatchSize  int           `long:"batch-size" env:"BATCH_SIZE" description:"Default geolocation batch size" default:"5"`
	BatchDelay time.Duration `long:"batch-delay" env:"BATCH_DELAY" description:"Default delay between geolocation batches" default:"500ms"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	Count  int           `long:"count" env:"COUNT" description:"Requests allowed per client IP within the window" default:"30"`
	Window time.Duration `long:"window" env:"WINDOW" description:"Rate limit window duration" default:"1m"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}

// ParseArgs parses args and the environment into a validated Config.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Version {
		return &cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate loads the session cookie from its fallback file when needed and
// checks value ranges.
func (c *Config) Validate() error {
	if c.Roblox.Cookie == "" && !c.FakeUpstream {
		cookie, err := readCookieFile(c.Roblox.CookieFile)
		if err != nil {
			return fmt.Errorf("required flag `-c, --roblox-cookie' or environment variable `REGIONSCAN_ROBLOX_COOKIE` was not specified: %w", err)
		}
		c.Roblox.Cookie = cookie
	}

	switch c.Roblox.PageSize {
	case 10, 25, 50, 100:
	default:
		return fmt.Errorf("invalid --roblox-page-size %d: must be 10, 25, 50 or 100", c.Roblox.PageSize)
	}

	if c.RateLimit.Count <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit count and window must be positive")
	}

	if c.Geolocate.RPS < 0 {
		return fmt.Errorf("invalid --geolocate-rps %v: must not be negative", c.Geolocate.RPS)
	}

	return nil
}

// readCookieFile reads the robloxCookie key from a JSON config file.
func readCookieFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("no cookie file configured")
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return "", err
	}

	var file struct {
		RobloxCookie string `json:"robloxCookie"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}

	cookie := strings.TrimSpace(file.RobloxCookie)
	if cookie == "" {
		return "", fmt.Errorf("'robloxCookie' is missing in %s", path)
	}

	return cookie, nil
}
