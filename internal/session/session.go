// Package session holds the process-wide mutable auth state: the Spotify
// bearer token with its expiry, and the TV WebSocket authorization token.
//
// Each manager is constructed once at startup, injected into the clients
// that need it, and guarded by its own mutex. Nothing outside this package
// holds a reference to the internal state.
package session

import (
	"context"
	"sync"
	"time"
)

// Manager is the lifecycle contract shared by all state managers.
// Initialize is invoked at process start, Cleanup at shutdown.
type Manager interface {
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// TokenSafetyMargin is subtracted from the Spotify token expiry: a token
// expiring within this window is treated as already absent, so a caller
// never hands an about-to-expire token to a request that will 401 mid-flight.
const TokenSafetyMargin = 60 * time.Second

// SpotifyAuthManager manages the Spotify access token and its expiry,
// plus the long-lived refresh credential.
type SpotifyAuthManager struct {
	mu           sync.Mutex
	accessToken  string
	expiresAt    time.Time
	refreshToken string
	now          func() time.Time
}

// NewSpotifyAuthManager creates a manager seeded with the refresh token
// from configuration (empty when the user has not authenticated yet).
func NewSpotifyAuthManager(refreshToken string) *SpotifyAuthManager {
	return &SpotifyAuthManager{
		refreshToken: refreshToken,
		now:          time.Now,
	}
}

// SetClock overrides the time source (tests only).
func (m *SpotifyAuthManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Initialize implements Manager.
func (m *SpotifyAuthManager) Initialize(context.Context) error { return nil }

// Cleanup clears the access token on shutdown.
func (m *SpotifyAuthManager) Cleanup(context.Context) error {
	m.mu.Lock()
	m.accessToken = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
	return nil
}

// Token returns the current access token if it is still usable, applying
// the safety margin. The second return is false when the token is absent
// or about to expire.
func (m *SpotifyAuthManager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken == "" {
		return "", false
	}
	if !m.now().Before(m.expiresAt.Add(-TokenSafetyMargin)) {
		return "", false
	}
	return m.accessToken, true
}

// SetToken stores a fresh access token with its lifetime in seconds.
func (m *SpotifyAuthManager) SetToken(token string, expiresIn int) {
	m.mu.Lock()
	m.accessToken = token
	m.expiresAt = m.now().Add(time.Duration(expiresIn) * time.Second)
	m.mu.Unlock()
}

// RefreshToken returns the long-lived refresh credential, if any.
func (m *SpotifyAuthManager) RefreshToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshToken, m.refreshToken != ""
}

// SetRefreshToken replaces the refresh credential (rotated by the provider
// or obtained through the OAuth callback).
func (m *SpotifyAuthManager) SetRefreshToken(token string) {
	m.mu.Lock()
	m.refreshToken = token
	m.mu.Unlock()
}

// TVStateManager holds the TV authorization token issued on first pairing
// approval, plus the wake-failure counter used for escalation hints.
type TVStateManager struct {
	mu           sync.Mutex
	authToken    string
	clientID     string
	wakeFailures int
}

// NewTVStateManager creates an empty TV state manager. The auth token may
// be seeded from configuration when a prior pairing persisted one.
func NewTVStateManager(authToken string) *TVStateManager {
	return &TVStateManager{authToken: authToken}
}

// Initialize implements Manager.
func (m *TVStateManager) Initialize(context.Context) error { return nil }

// Cleanup resets the failure counter. The auth token survives in memory
// until process exit; persisting it across restarts is the caller's job.
func (m *TVStateManager) Cleanup(context.Context) error {
	m.mu.Lock()
	m.wakeFailures = 0
	m.mu.Unlock()
	return nil
}

// Token returns the stored TV authorization token, if any.
func (m *TVStateManager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authToken, m.authToken != ""
}

// SetAuth stores the authorization token and client id granted by the TV.
func (m *TVStateManager) SetAuth(token, clientID string) {
	m.mu.Lock()
	m.authToken = token
	m.clientID = clientID
	m.mu.Unlock()
}

// ClientID returns the client id assigned by the TV during pairing.
func (m *TVStateManager) ClientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID
}

// WakeFailures returns the consecutive wake-failure count.
func (m *TVStateManager) WakeFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wakeFailures
}

// IncrementWakeFailures bumps the failure counter and returns the new value.
func (m *TVStateManager) IncrementWakeFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wakeFailures++
	return m.wakeFailures
}

// ResetWakeFailures zeroes the failure counter after a successful wake.
func (m *TVStateManager) ResetWakeFailures() {
	m.mu.Lock()
	m.wakeFailures = 0
	m.mu.Unlock()
}
