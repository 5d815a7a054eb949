package spotify

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jamiewh/homedash/internal/dasherr"
)

// stateTTL bounds how long an OAuth CSRF nonce stays valid. Expired
// entries are swept lazily on the next login attempt rather than by a
// background timer.
const stateTTL = 10 * time.Minute

var oauthScopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
}

// AuthURL generates a CSRF state nonce and returns the provider
// authorization URL the browser should be redirected to.
func (c *Client) AuthURL() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dasherr.Wrap(dasherr.KindAuth, "spotify", "auth_login", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	c.stateMu.Lock()
	c.sweepStatesLocked()
	c.pendingStates[state] = c.now()
	c.stateMu.Unlock()

	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.redirectURI)
	q.Set("state", state)
	q.Set("scope", strings.Join(oauthScopes, " "))
	q.Set("show_dialog", "false")

	return c.accountsURL + "/authorize?" + q.Encode(), nil
}

// consumeState validates and deletes a pending CSRF nonce. Expired or
// unknown states are rejected.
func (c *Client) consumeState(state string) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	createdAt, ok := c.pendingStates[state]
	if !ok {
		return false
	}
	delete(c.pendingStates, state)
	return c.now().Sub(createdAt) < stateTTL
}

// sweepStatesLocked drops pending states older than the TTL. Caller holds
// stateMu.
func (c *Client) sweepStatesLocked() {
	now := c.now()
	for state, createdAt := range c.pendingStates {
		if now.Sub(createdAt) >= stateTTL {
			delete(c.pendingStates, state)
		}
	}
}

// ExchangeCode completes the OAuth callback: verifies the CSRF state,
// exchanges the authorization code for tokens, and persists the refresh
// credential to durable configuration.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) error {
	if state == "" || !c.consumeState(state) {
		return dasherr.New(dasherr.KindAuth, "spotify", "auth_callback", "invalid state parameter")
	}
	if code == "" {
		return dasherr.New(dasherr.KindAuth, "spotify", "auth_callback", "no authorization code received")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)

	data, err := c.postToken(ctx, form)
	if err != nil {
		return err
	}
	if data.RefreshToken == "" {
		return dasherr.New(dasherr.KindAuth, "spotify", "auth_callback", "no refresh token received")
	}

	c.auth.SetRefreshToken(data.RefreshToken)
	expiresIn := data.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	c.auth.SetToken(data.AccessToken, expiresIn)

	if c.persister != nil {
		if err := c.persister.PersistSpotifyRefreshToken(data.RefreshToken); err != nil {
			return fmt.Errorf("persisting refresh token: %w", err)
		}
	}

	c.logger.Info().Msg("authorization code exchanged, refresh token stored")
	return nil
}

// PendingStates returns the number of unconsumed CSRF nonces (tests).
func (c *Client) PendingStates() int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return len(c.pendingStates)
}
