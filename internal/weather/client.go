// Package weather wraps the OpenWeatherMap current-weather API behind a
// short-TTL cache and normalizes the payload into a dashboard snapshot.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/jamiewh/homedash/internal/cache"
	"github.com/jamiewh/homedash/internal/dasherr"
)

// DefaultBaseURL is the OpenWeatherMap current-weather endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// CacheTTL is how long a snapshot is served without refetching. Weather
// changes slowly and the upstream has a strict quota.
const CacheTTL = 5 * time.Minute

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// currentWeather is the raw OpenWeatherMap payload, reduced to the fields
// the dashboard reads.
type currentWeather struct {
	Weather []struct {
		Main string `json:"main"`
		Icon string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Name string `json:"name"`
}

// Client fetches and caches the current weather for a fixed location.
type Client struct {
	baseURL    string
	apiKey     string
	latitude   float64
	longitude  float64
	location   string // optional city-name query overriding lat/lon
	httpClient HTTPClient
	cache      *cache.Cache[string, Snapshot]
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the upstream endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithLocation switches the query from coordinates to a city name.
func WithLocation(name string) Option {
	return func(c *Client) { c.location = name }
}

// WithCacheObserver registers a hit/miss callback on the snapshot cache.
func WithCacheObserver(obs cache.Observer) Option {
	return func(c *Client) {
		c.cache = cache.New[string, Snapshot](cache.WithObserver[string, Snapshot](obs))
	}
}

// NewClient creates a weather client for one lat/lon location.
func NewClient(apiKey string, lat, lon float64, httpClient HTTPClient, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		latitude:   lat,
		longitude:  lon,
		httpClient: httpClient,
		cache:      cache.New[string, Snapshot](),
		logger:     logger.With().Str("component", "weather").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the weather snapshot for the configured location,
// served from cache when fresh.
func (c *Client) Current(ctx context.Context) (Snapshot, error) {
	key := fmt.Sprintf("weather:%v:%v", c.latitude, c.longitude)
	if c.location != "" {
		key = "weather:" + c.location
	}
	return c.cache.GetOrCompute(key, CacheTTL, func() (Snapshot, error) {
		return c.fetch(ctx)
	})
}

// InvalidateCache drops the cached snapshot (used by tests and admin tooling).
func (c *Client) InvalidateCache() {
	c.cache.InvalidateAll()
}

func (c *Client) fetch(ctx context.Context) (Snapshot, error) {
	q := url.Values{}
	if c.location != "" {
		q.Set("q", c.location)
	} else {
		q.Set("lat", fmt.Sprintf("%v", c.latitude))
		q.Set("lon", fmt.Sprintf("%v", c.longitude))
	}
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	q.Set("lang", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Snapshot{}, dasherr.Wrap(dasherr.KindNetwork, "weather", "get_current_weather", err)
	}

	c.logger.Debug().Msg("fetching current weather")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, dasherr.Wrap(dasherr.KindNetwork, "weather", "get_current_weather", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Snapshot{}, dasherr.New(dasherr.KindUpstreamAPI, "weather", "get_current_weather",
			"weather API request failed").
			WithStatus(resp.StatusCode).
			WithDetail("api_response", string(body))
	}

	var raw currentWeather
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Snapshot{}, dasherr.Wrap(dasherr.KindValidation, "weather", "get_current_weather", err)
	}

	snap := mapSnapshot(&raw)

	c.logger.Info().
		Float64("temp_c", snap.TemperatureC).
		Str("condition", snap.Condition).
		Str("location", snap.Location).
		Msg("weather snapshot refreshed")

	return snap, nil
}
