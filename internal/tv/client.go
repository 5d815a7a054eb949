// Package tv controls a Samsung Tizen television over its control-plane
// WebSocket, with a plain-HTTP informational endpoint for power state.
//
// Each command opens a fresh connection: dial, channel-connect handshake,
// wait for authorization (pairing persists the granted token), send the
// command frame, close. The whole sequence is wrapped in exponential
// backoff retrying connection-class failures only.
package tv

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jamiewh/homedash/internal/dasherr"
	"github.com/jamiewh/homedash/internal/retry"
	"github.com/jamiewh/homedash/internal/session"
)

const (
	// DeviceName identifies this client on the TV's pairing screen.
	DeviceName = "HomeDashboard"

	handshakeTimeout = 5 * time.Second
	pairingTimeout   = 30 * time.Second
	infoTimeout      = 5 * time.Second

	// WakeFailureEscalation is the consecutive-failure count at which wake
	// failures are logged at error level. Observers can use the same
	// threshold to notify an external channel.
	WakeFailureEscalation = 5
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// wsConn is the subset of *websocket.Conn the client uses; faked in tests.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// dialFunc opens a control-plane WebSocket connection.
type dialFunc func(ctx context.Context, url string) (wsConn, error)

// Info is the TV device descriptor from the informational REST endpoint.
type Info struct {
	Device struct {
		PowerState string `json:"PowerState"`
		ModelName  string `json:"modelName"`
		Name       string `json:"name"`
	} `json:"device"`
}

// Client talks to one television at a fixed address.
type Client struct {
	ip         string
	state      *session.TVStateManager
	httpClient HTTPClient
	dial       dialFunc
	retryCfg   retry.Config
	logger     zerolog.Logger

	infoBaseURL string
	wsBaseURL   string

	// onWakeFailures receives the counter value after every wake attempt
	// (0 on success); feeds the metrics gauge.
	onWakeFailures func(count int)
}

// Option configures a Client.
type Option func(*Client)

// WithDialer overrides the WebSocket dial function (tests).
func WithDialer(d dialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// WithRetryConfig overrides the backoff policy (tests).
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// WithInfoBaseURL overrides the informational endpoint (tests).
func WithInfoBaseURL(u string) Option {
	return func(c *Client) { c.infoBaseURL = u }
}

// WithWSBaseURL overrides the control-plane endpoint (tests).
func WithWSBaseURL(u string) Option {
	return func(c *Client) { c.wsBaseURL = u }
}

// WithWakeFailureObserver registers a callback for the failure counter.
func WithWakeFailureObserver(fn func(count int)) Option {
	return func(c *Client) { c.onWakeFailures = fn }
}

// NewClient creates a client for the TV at ip.
func NewClient(ip string, state *session.TVStateManager, httpClient HTTPClient, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		ip:          ip,
		state:       state,
		httpClient:  httpClient,
		retryCfg:    retry.DefaultConfig(),
		logger:      logger.With().Str("component", "tv").Logger(),
		infoBaseURL: fmt.Sprintf("http://%s:8001", ip),
		wsBaseURL:   fmt.Sprintf("wss://%s:8002", ip),
	}
	c.dial = c.dialWS
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// dialWS opens the control channel, accepting the TV's self-signed
// certificate. The TV sits on the trusted home network; certificate
// validation is intentionally disabled for this one endpoint.
func (c *Client) dialWS(ctx context.Context, url string) (wsConn, error) {
	dialer := websocket.Dialer{
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) controlURL() string {
	name := base64.StdEncoding.EncodeToString([]byte(DeviceName))
	url := fmt.Sprintf("%s/api/v2/channels/samsung.remote.control?name=%s", c.wsBaseURL, name)
	if token, ok := c.state.Token(); ok {
		url += "&token=" + token
	}
	return url
}

// classifyConnErr maps a transport error to a connection-class error kind.
func classifyConnErr(op string, err error) *dasherr.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return dasherr.Wrap(dasherr.KindConnectionTimeout, "tv", op, err)
	}
	return dasherr.Wrap(dasherr.KindNetwork, "tv", op, err)
}

// sendCommand runs one full connect-handshake-command cycle. The command
// payload must already be marshalable; the connection is always closed.
func (c *Client) sendCommand(ctx context.Context, op string, command interface{}) error {
	conn, err := c.dial(ctx, c.controlURL())
	if err != nil {
		return classifyConnErr(op, err).WithDetail("tv_ip", c.ip)
	}
	defer conn.Close()

	hs, err := json.Marshal(newConnectFrame(DeviceName))
	if err != nil {
		return dasherr.Wrap(dasherr.KindValidation, "tv", op, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, hs); err != nil {
		return classifyConnErr(op, err).WithDetail("tv_ip", c.ip)
	}

	if err := c.awaitAuthorization(ctx, conn, op); err != nil {
		return err
	}

	payload, err := json.Marshal(command)
	if err != nil {
		return dasherr.Wrap(dasherr.KindValidation, "tv", op, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return classifyConnErr(op, err).WithDetail("tv_ip", c.ip)
	}
	return nil
}

// awaitAuthorization reads frames until the TV confirms the channel.
//
// With a stored token the confirmation arrives within the handshake
// timeout. Without one this is a pairing flow: the user must approve the
// request on the TV screen, so unauthorized events are ignored and the
// loop keeps waiting up to the pairing timeout. A granted token is
// persisted for reuse.
func (c *Client) awaitAuthorization(ctx context.Context, conn wsConn, op string) error {
	_, hadToken := c.state.Token()
	overall := handshakeTimeout
	if !hadToken {
		overall = pairingTimeout
	}
	deadline := time.Now().Add(overall)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return classifyConnErr(op, err).WithDetail("tv_ip", c.ip)
		}

		conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if hadToken {
					return dasherr.Wrap(dasherr.KindConnectionTimeout, "tv", op, err).
						WithDetail("tv_ip", c.ip)
				}
				continue // pairing: keep waiting for the user
			}
			return classifyConnErr(op, err).WithDetail("tv_ip", c.ip)
		}

		var frame inboundFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}

		switch frame.Event {
		case "ms.channel.connect":
			if frame.Data.Token != "" {
				c.state.SetAuth(frame.Data.Token, frame.Data.ID)
				c.logger.Info().Str("tv_ip", c.ip).Msg("stored TV authorization token")
			}
			return nil
		case "ms.channel.unauthorized":
			// User has not approved yet; keep waiting.
			continue
		}
	}

	return dasherr.New(dasherr.KindAuthorizationTimeout, "tv", op,
		"TV connection not authorized - allow access on the TV screen").
		WithDetail("tv_ip", c.ip)
}

// SendKey sends a remote key press (e.g. KEY_POWER, KEY_VOLUP), retrying
// connection-class failures with backoff.
func (c *Client) SendKey(ctx context.Context, key string) error {
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		return c.sendCommand(ctx, "send_key", newKeyFrame(key))
	})
	if err != nil {
		return err
	}
	c.logger.Info().Str("tv_ip", c.ip).Str("key", key).Msg("sent key to TV")
	return nil
}

// LaunchApp launches an application by Tizen app id. actionType is
// DEEP_LINK or NATIVE_LAUNCH; metaTag carries an optional deep link.
func (c *Client) LaunchApp(ctx context.Context, appID, actionType, metaTag string) error {
	if actionType == "" {
		actionType = "DEEP_LINK"
	}
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		return c.sendCommand(ctx, "launch_app", newLaunchFrame(appID, actionType, metaTag))
	})
	if err != nil {
		var de *dasherr.Error
		if errors.As(err, &de) {
			de.WithDetail("app_id", appID)
		}
		return err
	}
	c.logger.Info().Str("tv_ip", c.ip).Str("app_id", appID).Msg("launched app on TV")
	return nil
}

// GetInfo queries the informational REST endpoint for the device descriptor.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.infoBaseURL+"/api/v2/", nil)
	if err != nil {
		return nil, dasherr.Wrap(dasherr.KindNetwork, "tv", "get_info", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyConnErr("get_info", err).WithDetail("tv_ip", c.ip)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dasherr.New(dasherr.KindUpstreamAPI, "tv", "get_info", "TV info request failed").
			WithStatus(resp.StatusCode).
			WithDetail("tv_ip", c.ip)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, dasherr.Wrap(dasherr.KindValidation, "tv", "get_info", err)
	}

	c.logger.Debug().
		Str("tv_ip", c.ip).
		Str("power_state", info.Device.PowerState).
		Str("model", info.Device.ModelName).
		Msg("TV info received")

	return &info, nil
}

// Wake turns the TV on if it is in standby.
//
// The power-state query is best-effort: when it fails the key is sent
// unconditionally. When the TV reports "on" no key is sent at all, so an
// already-on TV is never toggled off.
func (c *Client) Wake(ctx context.Context) (string, error) {
	powerState := "unknown"
	if info, err := c.GetInfo(ctx); err == nil {
		powerState = info.Device.PowerState
	} else {
		c.logger.Warn().Err(err).Str("tv_ip", c.ip).Msg("power state query failed, waking unconditionally")
	}

	if powerState == "on" {
		c.recordWakeSuccess()
		return "TV is already on", nil
	}

	if err := c.SendKey(ctx, "KEY_POWER"); err != nil {
		c.recordWakeFailure(err)
		return "", err
	}

	c.recordWakeSuccess()
	if powerState == "standby" {
		return "TV was in standby, sent KEY_POWER", nil
	}
	return fmt.Sprintf("TV power state unknown (%s), sent KEY_POWER", powerState), nil
}

func (c *Client) recordWakeSuccess() {
	c.state.ResetWakeFailures()
	if c.onWakeFailures != nil {
		c.onWakeFailures(0)
	}
}

func (c *Client) recordWakeFailure(err error) {
	count := c.state.IncrementWakeFailures()
	if c.onWakeFailures != nil {
		c.onWakeFailures(count)
	}
	evt := c.logger.Warn()
	if count >= WakeFailureEscalation {
		evt = c.logger.Error()
	}
	evt.Err(err).Str("tv_ip", c.ip).Int("consecutive_failures", count).Msg("TV wake failed")
}

// Reachable probes the TV by completing a dial plus handshake write and
// first read. It cannot distinguish a powered-off TV from an unreachable
// network; any connection-class failure simply reports false.
func (c *Client) Reachable(ctx context.Context) bool {
	conn, err := c.dial(ctx, c.controlURL())
	if err != nil {
		return false
	}
	defer conn.Close()

	hs, _ := json.Marshal(newConnectFrame(DeviceName))
	if err := conn.WriteMessage(websocket.TextMessage, hs); err != nil {
		return false
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, _, err = conn.ReadMessage()
	return err == nil
}
