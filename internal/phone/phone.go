// Package phone triggers the IFTTT webhook that rings the house phone.
package phone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jamiewh/homedash/internal/dasherr"
)

// DefaultBaseURL is the IFTTT maker webhook endpoint.
const DefaultBaseURL = "https://maker.ifttt.com"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier sends ring requests through an IFTTT maker webhook.
type Notifier struct {
	baseURL    string
	eventName  string
	webhookKey string
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewNotifier creates an IFTTT notifier for one event/key pair.
func NewNotifier(eventName, webhookKey string, httpClient HTTPClient, logger zerolog.Logger) *Notifier {
	return &Notifier{
		baseURL:    DefaultBaseURL,
		eventName:  eventName,
		webhookKey: webhookKey,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "phone").Logger(),
	}
}

// SetBaseURL overrides the webhook endpoint (tests).
func (n *Notifier) SetBaseURL(u string) { n.baseURL = u }

// Ring triggers the webhook with an optional message and returns a status line.
func (n *Notifier) Ring(ctx context.Context, message string) (string, error) {
	if message == "" {
		message = "Ring from home dashboard"
	}

	body, err := json.Marshal(map[string]string{"value1": message})
	if err != nil {
		return "", dasherr.Wrap(dasherr.KindValidation, "phone", "ring", err)
	}

	url := fmt.Sprintf("%s/trigger/%s/with/key/%s", n.baseURL, n.eventName, n.webhookKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", dasherr.Wrap(dasherr.KindNetwork, "phone", "ring", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", dasherr.Wrap(dasherr.KindNetwork, "phone", "ring", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return "", dasherr.New(dasherr.KindUpstreamAPI, "phone", "ring", "IFTTT webhook request failed").
			WithStatus(resp.StatusCode).
			WithDetail("event_name", n.eventName)
	}

	n.logger.Info().Str("event", n.eventName).Msg("ring request sent")
	return "Ring request sent to phone", nil
}
