package spotify

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamiewh/homedash/internal/dasherr"
)

func authURLState(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestAuthURL(t *testing.T) {
	h := newHarness(t, "")

	rawURL, err := h.client.AuthURL()
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://localhost:8000/api/spotify/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "user-read-playback-state user-modify-playback-state", q.Get("scope"))
	assert.NotEmpty(t, q.Get("state"))

	assert.Equal(t, 1, h.client.PendingStates())

	// Each login attempt issues a distinct nonce.
	rawURL2, err := h.client.AuthURL()
	require.NoError(t, err)
	assert.NotEqual(t, authURLState(t, rawURL), authURLState(t, rawURL2))
	assert.Equal(t, 2, h.client.PendingStates())
}

func TestExchangeCode(t *testing.T) {
	h := newHarness(t, "")
	h.tokenPayload = `{"access_token":"at-1","expires_in":3600,"refresh_token":"rt-fresh"}`

	rawURL, err := h.client.AuthURL()
	require.NoError(t, err)
	state := authURLState(t, rawURL)

	require.NoError(t, h.client.ExchangeCode(context.Background(), "auth-code", state))

	h.mu.Lock()
	form := h.tokenForms[0]
	h.mu.Unlock()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, "http://localhost:8000/api/spotify/auth/callback", form.Get("redirect_uri"))

	rt, ok := h.auth.RefreshToken()
	require.True(t, ok)
	assert.Equal(t, "rt-fresh", rt)
	assert.Equal(t, []string{"rt-fresh"}, h.persist.tokens)
	assert.True(t, h.client.Authenticated())

	// The nonce is single-use.
	err = h.client.ExchangeCode(context.Background(), "auth-code", state)
	assert.True(t, dasherr.IsKind(err, dasherr.KindAuth))
}

func TestExchangeCode_InvalidState(t *testing.T) {
	h := newHarness(t, "")

	err := h.client.ExchangeCode(context.Background(), "code", "never-issued")
	assert.True(t, dasherr.IsKind(err, dasherr.KindAuth))

	err = h.client.ExchangeCode(context.Background(), "code", "")
	assert.True(t, dasherr.IsKind(err, dasherr.KindAuth))

	tokens, _ := h.counts()
	assert.Equal(t, 0, tokens, "no token exchange with a bad state")
}

func TestExchangeCode_MissingCode(t *testing.T) {
	h := newHarness(t, "")
	rawURL, err := h.client.AuthURL()
	require.NoError(t, err)

	err = h.client.ExchangeCode(context.Background(), "", authURLState(t, rawURL))
	assert.True(t, dasherr.IsKind(err, dasherr.KindAuth))
}

func TestExchangeCode_NoRefreshToken(t *testing.T) {
	h := newHarness(t, "")
	h.tokenPayload = `{"access_token":"at-1","expires_in":3600}`

	rawURL, err := h.client.AuthURL()
	require.NoError(t, err)

	err = h.client.ExchangeCode(context.Background(), "code", authURLState(t, rawURL))
	assert.True(t, dasherr.IsKind(err, dasherr.KindAuth))
}

func TestStateExpiry(t *testing.T) {
	base := time.Now()
	clock := base
	h := newHarness(t, "", WithClock(func() time.Time { return clock }))
	h.tokenPayload = `{"access_token":"at-1","expires_in":3600,"refresh_token":"rt"}`

	rawURL, err := h.client.AuthURL()
	require.NoError(t, err)
	fresh := authURLState(t, rawURL)

	// Just inside the 10-minute window the nonce is still valid.
	clock = base.Add(10*time.Minute - time.Second)
	require.NoError(t, h.client.ExchangeCode(context.Background(), "code", fresh))

	rawURL2, err := h.client.AuthURL()
	require.NoError(t, err)
	stale := authURLState(t, rawURL2)

	clock = clock.Add(10*time.Minute + time.Second)
	err = h.client.ExchangeCode(context.Background(), "code", stale)
	assert.True(t, dasherr.IsKind(err, dasherr.KindAuth))
}

func TestStateSweep(t *testing.T) {
	base := time.Now()
	clock := base
	h := newHarness(t, "", WithClock(func() time.Time { return clock }))

	_, err := h.client.AuthURL()
	require.NoError(t, err)
	_, err = h.client.AuthURL()
	require.NoError(t, err)
	assert.Equal(t, 2, h.client.PendingStates())

	// A later login attempt sweeps the expired nonces.
	clock = base.Add(11 * time.Minute)
	_, err = h.client.AuthURL()
	require.NoError(t, err)
	assert.Equal(t, 1, h.client.PendingStates())
}
