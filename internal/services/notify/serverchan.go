package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
)

// ErrNotConfigured is returned when a delivery channel has no credential.
var ErrNotConfigured = errors.New("delivery channel not configured")

// DefaultServerChanURL is the ServerChan Turbo API host.
const DefaultServerChanURL = "https://sctapi.ftqq.com"

// maxResponseBytes caps how much of a webhook response is read.
const maxResponseBytes = 1 << 20

// ServerChan pushes messages through the ServerChan webhook.
type ServerChan struct {
	client  *http.Client
	baseURL string
}

// NewServerChan creates a client. A nil client gets a 30 second timeout.
func NewServerChan(baseURL string, client *http.Client) *ServerChan {
	if baseURL == "" {
		baseURL = DefaultServerChanURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ServerChan{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Send posts {title, desp} to <base>/<key>.send. Delivery counts as
// successful only when the response carries code 0 or data.errno 0.
func (c *ServerChan) Send(ctx context.Context, key, title, body string) error {
	if key == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"title": title,
		"desp":  body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s.send", c.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create ServerChan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ServerChan request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read ServerChan response: %w", err)
	}

	if !gjson.ValidBytes(respBody) {
		return fmt.Errorf("ServerChan returned status %d with a non-JSON body", resp.StatusCode)
	}

	result := gjson.ParseBytes(respBody)
	code := result.Get("code")
	errno := result.Get("data.errno")
	if isNumericZero(code) || isNumericZero(errno) {
		return nil
	}

	msg := result.Get("message").String()
	if msg == "" {
		msg = result.Get("info").String()
	}
	return fmt.Errorf("ServerChan rejected message (status %d, code %s): %s", resp.StatusCode, code.Raw, msg)
}

// isNumericZero matches a JSON number equal to 0. Strings, booleans and null
// do not count as success.
func isNumericZero(v gjson.Result) bool {
	return v.Type == gjson.Number && v.Num == 0
}
