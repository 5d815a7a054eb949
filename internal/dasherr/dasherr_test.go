package dasherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	e := New(KindUpstreamAPI, "spotify", "play", "request rejected")
	assert.Equal(t, "spotify play: request rejected", e.Error())

	e.WithStatus(403)
	assert.Equal(t, "spotify play: request rejected (status 403)", e.Error())
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := Wrap(KindNetwork, "tv", "send_key", cause)

	assert.Equal(t, "connection refused", e.Message)
	assert.ErrorIs(t, e, cause)

	// Survives further fmt wrapping.
	wrapped := fmt.Errorf("outer: %w", e)
	var de *Error
	require.True(t, errors.As(wrapped, &de))
	assert.Equal(t, KindNetwork, de.Kind)
}

func TestWithDetail(t *testing.T) {
	e := New(KindUpstreamAPI, "weather", "current", "bad response").
		WithDetail("api_response", "oops").
		WithDetail("lat", "52.1")

	assert.Equal(t, "oops", e.Details["api_response"])
	assert.Equal(t, "52.1", e.Details["lat"])
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindAuth, KindOf(New(KindAuth, "spotify", "refresh", "denied")))
	assert.True(t, IsKind(New(KindConfig, "config", "load", "bad"), KindConfig))
}

func TestIsConnectionFailure(t *testing.T) {
	assert.True(t, IsConnectionFailure(New(KindNetwork, "tv", "op", "x")))
	assert.True(t, IsConnectionFailure(New(KindConnectionTimeout, "tv", "op", "x")))

	assert.False(t, IsConnectionFailure(New(KindAuthorizationTimeout, "tv", "op", "x")))
	assert.False(t, IsConnectionFailure(New(KindUpstreamAPI, "spotify", "op", "x")))
	assert.False(t, IsConnectionFailure(errors.New("plain")))
	assert.False(t, IsConnectionFailure(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotAuthenticated, 401},
		{KindAuth, 401},
		{KindUpstreamAPI, 502},
		{KindValidation, 502},
		{KindNetwork, 503},
		{KindConnectionTimeout, 503},
		{KindAuthorizationTimeout, 503},
		{KindConfig, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(New(tt.kind, "s", "op", "m")), string(tt.kind))
	}

	assert.Equal(t, 500, HTTPStatus(errors.New("plain")))
}
