// Package spotify wraps the Spotify Web API: token lifecycle over a
// long-lived refresh credential, playback state with a short-TTL cache,
// transport commands, and the TV orchestration workflows.
package spotify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jamiewh/homedash/internal/cache"
	"github.com/jamiewh/homedash/internal/dasherr"
	"github.com/jamiewh/homedash/internal/session"
)

const (
	// DefaultAccountsURL hosts the OAuth and token endpoints.
	DefaultAccountsURL = "https://accounts.spotify.com"
	// DefaultAPIURL hosts the Web API.
	DefaultAPIURL = "https://api.spotify.com"

	// statusCacheTTL bounds how often playback state is refetched while
	// the dashboard polls it.
	statusCacheTTL = 5 * time.Second

	statusCacheKey = "spotify:current_track"

	// loginHint points a NotAuthenticated error at the endpoint that
	// starts the OAuth flow.
	loginHint = "/api/spotify/auth/login"
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RefreshTokenPersister writes a rotated refresh credential to durable
// configuration. config.Config satisfies this.
type RefreshTokenPersister interface {
	PersistSpotifyRefreshToken(token string) error
}

// TVService is the TV surface the orchestration workflows need.
// internal/tv.Client satisfies it; tests use a fake.
type TVService interface {
	Wake(ctx context.Context) (string, error)
	LaunchApp(ctx context.Context, appID, actionType, metaTag string) error
}

// Client talks to the Spotify Web API for a single account.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	tvDeviceID   string

	auth       *session.SpotifyAuthManager
	persister  RefreshTokenPersister
	httpClient HTTPClient
	logger     zerolog.Logger

	accountsURL string
	apiURL      string

	statusCache *cache.Cache[string, PlaybackStatus]

	// OAuth CSRF nonces, swept lazily on each login attempt.
	stateMu       sync.Mutex
	pendingStates map[string]time.Time
	now           func() time.Time

	// sleep is swapped out in workflow tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithAccountsURL overrides the accounts endpoint (tests).
func WithAccountsURL(u string) Option {
	return func(c *Client) { c.accountsURL = strings.TrimSuffix(u, "/") }
}

// WithAPIURL overrides the Web API endpoint (tests).
func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = strings.TrimSuffix(u, "/") }
}

// WithCacheObserver registers a hit/miss callback on the status cache.
func WithCacheObserver(obs cache.Observer) Option {
	return func(c *Client) {
		c.statusCache = cache.New[string, PlaybackStatus](cache.WithObserver[string, PlaybackStatus](obs))
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Config carries the credential set for NewClient.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TVDeviceID   string
}

// NewClient creates a Spotify client.
func NewClient(cfg Config, auth *session.SpotifyAuthManager, persister RefreshTokenPersister, httpClient HTTPClient, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		redirectURI:   cfg.RedirectURI,
		tvDeviceID:    cfg.TVDeviceID,
		auth:          auth,
		persister:     persister,
		httpClient:    httpClient,
		logger:        logger.With().Str("component", "spotify").Logger(),
		accountsURL:   DefaultAccountsURL,
		apiURL:        DefaultAPIURL,
		statusCache:   cache.New[string, PlaybackStatus](),
		pendingStates: make(map[string]time.Time),
		now:           time.Now,
		sleep:         sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Authenticated reports whether a refresh credential is available.
func (c *Client) Authenticated() bool {
	_, ok := c.auth.RefreshToken()
	return ok
}

// tokenResponse is the provider's token-endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// accessToken returns a usable bearer token, refreshing it through the
// token endpoint when the cached one is absent or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token, ok := c.auth.Token(); ok {
		return token, nil
	}

	refreshToken, ok := c.auth.RefreshToken()
	if !ok {
		return "", dasherr.New(dasherr.KindNotAuthenticated, "spotify", "refresh_token",
			"no refresh token available, authenticate first").
			WithDetail("auth_url", loginHint)
	}

	c.logger.Debug().Msg("refreshing access token")

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	data, err := c.postToken(ctx, form)
	if err != nil {
		return "", err
	}

	expiresIn := data.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	c.auth.SetToken(data.AccessToken, expiresIn)

	// The provider occasionally rotates the refresh credential. Losing it
	// would force a re-login, so persist it. The access token we just
	// obtained is still usable, so a persist failure only warns.
	if data.RefreshToken != "" && data.RefreshToken != refreshToken {
		c.auth.SetRefreshToken(data.RefreshToken)
		if c.persister != nil {
			if err := c.persister.PersistSpotifyRefreshToken(data.RefreshToken); err != nil {
				c.logger.Warn().Err(err).Msg("rotated refresh token could not be persisted")
			} else {
				c.logger.Info().Msg("rotated refresh token persisted")
			}
		} else {
			c.logger.Warn().Msg("provider rotated refresh token but no persister is configured")
		}
	}

	c.logger.Info().Int("expires_in", expiresIn).Msg("access token refreshed")
	return data.AccessToken, nil
}

// postToken calls the token endpoint with client-credential basic auth.
func (c *Client) postToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, dasherr.Wrap(dasherr.KindNetwork, "spotify", "token_exchange", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, dasherr.Wrap(dasherr.KindNetwork, "spotify", "token_exchange", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, dasherr.New(dasherr.KindAuth, "spotify", "token_exchange",
			"token exchange rejected").
			WithStatus(resp.StatusCode)
	}

	var data tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, dasherr.Wrap(dasherr.KindAuth, "spotify", "token_exchange", err)
	}
	if data.AccessToken == "" {
		return nil, dasherr.New(dasherr.KindAuth, "spotify", "token_exchange",
			"token response missing access_token")
	}
	return &data, nil
}

// apiRequest issues an authenticated Web API call and returns the response.
// Callers own the body. Statuses >= 400 are translated to typed errors.
func (c *Client) apiRequest(ctx context.Context, method, path, rawQuery string, body io.Reader, op string) (*http.Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.apiURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, dasherr.Wrap(dasherr.KindNetwork, "spotify", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, dasherr.Wrap(dasherr.KindNetwork, "spotify", op, err)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, dasherr.New(dasherr.KindUpstreamAPI, "spotify", op, "API call rejected").
			WithStatus(resp.StatusCode).
			WithDetail("operation", op)
	}
	return resp, nil
}
