// Package config loads application configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8000"`
	APIKey      string `envconfig:"DASHBOARD_API_KEY"`
	CORSOrigins string `envconfig:"CORS_ORIGINS"`

	// Samsung TV (optional; TV endpoints disabled when unset)
	TVIP              string `envconfig:"TV_IP"`
	TVSpotifyDeviceID string `envconfig:"TV_SPOTIFY_DEVICE_ID"`
	TVAuthToken       string `envconfig:"TV_AUTH_TOKEN"` // persisted pairing token, if any

	// Spotify (optional; Spotify endpoints disabled when unset)
	SpotifyClientID     string `envconfig:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `envconfig:"SPOTIFY_CLIENT_SECRET"`
	SpotifyRedirectURI  string `envconfig:"SPOTIFY_REDIRECT_URI"`
	SpotifyRefreshToken string `envconfig:"SPOTIFY_REFRESH_TOKEN"` // populated after OAuth

	// OpenWeatherMap (optional; weather endpoint disabled when unset)
	WeatherAPIKey    string  `envconfig:"WEATHER_API_KEY"`
	WeatherLocation  string  `envconfig:"WEATHER_LOCATION"`
	WeatherLatitude  float64 `envconfig:"WEATHER_LATITUDE"`
	WeatherLongitude float64 `envconfig:"WEATHER_LONGITUDE"`

	// IFTTT phone webhook (optional)
	IFTTTWebhookKey string `envconfig:"IFTTT_WEBHOOK_KEY"`
	IFTTTEventName  string `envconfig:"IFTTT_EVENT_NAME"`

	// Outbound HTTP
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`

	// Favourite playlists file (YAML list of {name, uri})
	PlaylistsFile string `envconfig:"PLAYLISTS_FILE" default:"playlists.yaml"`

	// envFile records where the .env was loaded from so a rotated refresh
	// token can be written back to the same place.
	envFile string

	// persistMu serializes refresh-token write-backs. Two requests that
	// both miss the token cache can both refresh and both persist; without
	// the lock the read-modify-write of the .env file loses one update.
	persistMu sync.Mutex
}

// Load reads configuration from the environment, after merging in the
// given .env file when it exists. A missing .env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.envFile = envFile

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TVIP != "" && net.ParseIP(c.TVIP) == nil {
		return fmt.Errorf("TV_IP %q is not a valid IP address", c.TVIP)
	}
	if c.WeatherAPIKey != "" {
		if c.WeatherLatitude < -90 || c.WeatherLatitude > 90 {
			return fmt.Errorf("WEATHER_LATITUDE %v out of range [-90, 90]", c.WeatherLatitude)
		}
		if c.WeatherLongitude < -180 || c.WeatherLongitude > 180 {
			return fmt.Errorf("WEATHER_LONGITUDE %v out of range [-180, 180]", c.WeatherLongitude)
		}
	}
	return nil
}

// SpotifyEnabled returns true if Spotify client credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// TVEnabled returns true if the TV address is configured.
func (c *Config) TVEnabled() bool {
	return c.TVIP != ""
}

// WeatherEnabled returns true if the weather API key is configured.
func (c *Config) WeatherEnabled() bool {
	return c.WeatherAPIKey != ""
}

// PhoneEnabled returns true if the IFTTT webhook is configured.
func (c *Config) PhoneEnabled() bool {
	return c.IFTTTWebhookKey != "" && c.IFTTTEventName != ""
}

// PersistSpotifyRefreshToken writes a rotated refresh token back to the
// .env file so the credential survives a restart. When no .env file is in
// play the token only lives in memory.
func (c *Config) PersistSpotifyRefreshToken(token string) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.SpotifyRefreshToken = token

	if c.envFile == "" {
		return fmt.Errorf("no env file configured, refresh token not persisted")
	}

	env, err := godotenv.Read(c.envFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading %s: %w", c.envFile, err)
		}
		env = make(map[string]string)
	}
	env["SPOTIFY_REFRESH_TOKEN"] = token

	if err := godotenv.Write(env, c.envFile); err != nil {
		return fmt.Errorf("writing %s: %w", c.envFile, err)
	}
	return nil
}
