package tv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamiewh/homedash/internal/dasherr"
	"github.com/jamiewh/homedash/internal/retry"
	"github.com/jamiewh/homedash/internal/session"
)

// fakeConn scripts the TV side of the control channel.
type fakeConn struct {
	mu      sync.Mutex
	inbound [][]byte
	written [][]byte
	closed  bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return 0, nil, timeoutErr{}
	}
	msg := f.inbound[0]
	f.inbound = f.inbound[1:]
	return 1, msg, nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) writtenFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "read timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func connectEvent(token string) []byte {
	return []byte(`{"event":"ms.channel.connect","data":{"token":"` + token + `","id":"client-1"}}`)
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func newTestClient(t *testing.T, state *session.TVStateManager, dial dialFunc, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithDialer(dial), WithRetryConfig(fastRetry())}, opts...)
	return NewClient("192.168.1.50", state, http.DefaultClient, zerolog.Nop(), opts...)
}

func TestSendKey(t *testing.T) {
	state := session.NewTVStateManager("stored-token")
	conn := &fakeConn{inbound: [][]byte{connectEvent("")}}
	var gotURL string
	c := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		gotURL = url
		return conn, nil
	})

	require.NoError(t, c.SendKey(context.Background(), "KEY_VOLUP"))

	// Device name travels base64-encoded; the stored token rides along.
	assert.Contains(t, gotURL, "samsung.remote.control?name=")
	assert.Contains(t, gotURL, "&token=stored-token")

	frames := conn.writtenFrames()
	require.Len(t, frames, 2, "handshake then command")

	var key keyFrame
	require.NoError(t, json.Unmarshal(frames[1], &key))
	assert.Equal(t, "ms.remote.control", key.Method)
	assert.Equal(t, "Click", key.Params.Cmd)
	assert.Equal(t, "KEY_VOLUP", key.Params.DataOfCmd)
	assert.Equal(t, "SendRemoteKey", key.Params.TypeOfRemote)
	assert.True(t, conn.closed)
}

func TestSendKey_RetriesThenSucceeds(t *testing.T) {
	state := session.NewTVStateManager("tok")
	dials := 0
	c := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		dials++
		if dials < 3 {
			return nil, errors.New("connection refused")
		}
		return &fakeConn{inbound: [][]byte{connectEvent("")}}, nil
	})

	require.NoError(t, c.SendKey(context.Background(), "KEY_POWER"))
	assert.Equal(t, 3, dials)
}

func TestSendKey_ExhaustsRetries(t *testing.T) {
	state := session.NewTVStateManager("tok")
	dials := 0
	c := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		dials++
		return nil, errors.New("connection refused")
	})

	err := c.SendKey(context.Background(), "KEY_POWER")
	require.Error(t, err)
	assert.Equal(t, 4, dials, "max retries plus the initial attempt")
	assert.True(t, dasherr.IsKind(err, dasherr.KindNetwork))
}

func TestSendKey_TimeoutClassified(t *testing.T) {
	state := session.NewTVStateManager("tok")
	c := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		return nil, timeoutErr{}
	})

	err := c.SendKey(context.Background(), "KEY_POWER")
	assert.True(t, dasherr.IsKind(err, dasherr.KindConnectionTimeout))
}

func TestAuthorization_PairingStoresToken(t *testing.T) {
	state := session.NewTVStateManager("")
	conn := &fakeConn{inbound: [][]byte{
		[]byte(`{"event":"ms.channel.unauthorized"}`),
		connectEvent("granted-token"),
	}}
	var gotURL string
	c := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		gotURL = url
		return conn, nil
	})

	require.NoError(t, c.SendKey(context.Background(), "KEY_HOME"))

	assert.NotContains(t, gotURL, "&token=", "no token before first pairing")
	tok, ok := state.Token()
	require.True(t, ok)
	assert.Equal(t, "granted-token", tok)
	assert.Equal(t, "client-1", state.ClientID())
}

func TestAuthorization_TimeoutWithToken(t *testing.T) {
	state := session.NewTVStateManager("tok")
	c := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		return &fakeConn{}, nil // never answers
	})

	err := c.SendKey(context.Background(), "KEY_POWER")
	require.Error(t, err)
	// A read timeout with a stored token is connection-class, so it is
	// retried and eventually surfaces as such.
	assert.True(t, dasherr.IsKind(err, dasherr.KindConnectionTimeout))
}

func infoServer(t *testing.T, powerState string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/", r.URL.Path)
		w.Write([]byte(`{"device":{"PowerState":"` + powerState + `","modelName":"QE55","name":"Living Room TV"}}`))
	}))
}

func TestGetInfo(t *testing.T) {
	srv := infoServer(t, "standby")
	defer srv.Close()

	state := session.NewTVStateManager("")
	c := NewClient("192.168.1.50", state, srv.Client(), zerolog.Nop(), WithInfoBaseURL(srv.URL))

	info, err := c.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "standby", info.Device.PowerState)
	assert.Equal(t, "QE55", info.Device.ModelName)
}

func TestWake_AlreadyOn(t *testing.T) {
	srv := infoServer(t, "on")
	defer srv.Close()

	state := session.NewTVStateManager("tok")
	state.IncrementWakeFailures()

	dials := 0
	var observed []int
	c := NewClient("192.168.1.50", state, srv.Client(), zerolog.Nop(),
		WithInfoBaseURL(srv.URL),
		WithRetryConfig(fastRetry()),
		WithDialer(func(ctx context.Context, url string) (wsConn, error) {
			dials++
			return &fakeConn{inbound: [][]byte{connectEvent("")}}, nil
		}),
		WithWakeFailureObserver(func(count int) { observed = append(observed, count) }),
	)

	msg, err := c.Wake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TV is already on", msg)
	assert.Equal(t, 0, dials, "no key frame sent to an already-on TV")
	assert.Equal(t, 0, state.WakeFailures())
	assert.Equal(t, []int{0}, observed)
}

func TestWake_FromStandby(t *testing.T) {
	srv := infoServer(t, "standby")
	defer srv.Close()

	state := session.NewTVStateManager("tok")
	c := NewClient("192.168.1.50", state, srv.Client(), zerolog.Nop(),
		WithInfoBaseURL(srv.URL),
		WithRetryConfig(fastRetry()),
		WithDialer(func(ctx context.Context, url string) (wsConn, error) {
			return &fakeConn{inbound: [][]byte{connectEvent("")}}, nil
		}),
	)

	msg, err := c.Wake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TV was in standby, sent KEY_POWER", msg)
	assert.Equal(t, 0, state.WakeFailures())
}

func TestWake_FailureIncrementsCounterOnce(t *testing.T) {
	srv := infoServer(t, "standby")
	defer srv.Close()

	state := session.NewTVStateManager("tok")
	dials := 0
	var observed []int
	c := NewClient("192.168.1.50", state, srv.Client(), zerolog.Nop(),
		WithInfoBaseURL(srv.URL),
		WithRetryConfig(fastRetry()),
		WithDialer(func(ctx context.Context, url string) (wsConn, error) {
			dials++
			return nil, errors.New("connection refused")
		}),
		WithWakeFailureObserver(func(count int) { observed = append(observed, count) }),
	)

	_, err := c.Wake(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, dials, "all retry attempts consumed")
	assert.Equal(t, 1, state.WakeFailures(), "one failure per wake, not per attempt")
	assert.Equal(t, []int{1}, observed)

	// A later success resets the counter.
	srvOn := infoServer(t, "on")
	defer srvOn.Close()
	c2 := NewClient("192.168.1.50", state, srvOn.Client(), zerolog.Nop(),
		WithInfoBaseURL(srvOn.URL),
		WithWakeFailureObserver(func(count int) { observed = append(observed, count) }),
	)
	_, err = c2.Wake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, state.WakeFailures())
	assert.Equal(t, []int{1, 0}, observed)
}

func TestWake_InfoUnreachableStillSendsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // power-state query will fail

	state := session.NewTVStateManager("tok")
	sent := false
	c := NewClient("192.168.1.50", state, http.DefaultClient, zerolog.Nop(),
		WithInfoBaseURL(srv.URL),
		WithRetryConfig(fastRetry()),
		WithDialer(func(ctx context.Context, url string) (wsConn, error) {
			sent = true
			return &fakeConn{inbound: [][]byte{connectEvent("")}}, nil
		}),
	)

	msg, err := c.Wake(context.Background())
	require.NoError(t, err)
	assert.True(t, sent, "key sent unconditionally when power state is unknown")
	assert.Contains(t, msg, "unknown")
}

func TestLaunchApp(t *testing.T) {
	state := session.NewTVStateManager("tok")
	conn := &fakeConn{inbound: [][]byte{connectEvent("")}}
	c := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	})

	require.NoError(t, c.LaunchApp(context.Background(), "3201606009684", "", ""))

	frames := conn.writtenFrames()
	require.Len(t, frames, 2)

	var emit emitFrame
	require.NoError(t, json.Unmarshal(frames[1], &emit))
	assert.Equal(t, "ms.channel.emit", emit.Method)
	assert.Equal(t, "ed.apps.launch", emit.Params.Event)
	assert.Equal(t, "host", emit.Params.To)
	assert.Equal(t, "3201606009684", emit.Params.Data.AppID)
	assert.Equal(t, "DEEP_LINK", emit.Params.Data.ActionType, "empty action type defaults to DEEP_LINK")
}

func TestReachable(t *testing.T) {
	state := session.NewTVStateManager("tok")

	up := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		return &fakeConn{inbound: [][]byte{connectEvent("")}}, nil
	})
	assert.True(t, up.Reachable(context.Background()))

	down := newTestClient(t, state, func(ctx context.Context, url string) (wsConn, error) {
		return nil, errors.New("no route to host")
	})
	assert.False(t, down.Reachable(context.Background()))
}
