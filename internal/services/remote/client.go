// Package remote mirrors snapshots to a Firebase Realtime Database over its REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// maxParallelFetches bounds FetchAll's concurrent reads.
const maxParallelFetches = 4

const maxResponseBytes = 4 << 20

// Record is one account as stored remotely.
type Record struct {
	SyncTime  time.Time
	Snapshot  *models.UsageSnapshot
	AccountID string
}

// Client talks to the REST endpoint of a realtime database.
type Client struct {
	http *http.Client
}

// NewClient creates a client. A nil http client gets a 10 second timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: httpClient}
}

// accountURL returns <db>/accounts/<sanitized id>.json.
func accountURL(databaseURL, accountID string) string {
	return fmt.Sprintf("%s/accounts/%s.json",
		strings.TrimRight(databaseURL, "/"),
		url.PathEscape(models.SanitizeAccountID(accountID)))
}

// Put writes snap under its account with a syncTime stamp.
func (c *Client) Put(ctx context.Context, databaseURL string, snap *models.UsageSnapshot, syncTime time.Time) error {
	payload, err := json.Marshal(struct {
		*models.UsageSnapshot
		SyncTime int64 `json:"syncTime"`
	}{snap, syncTime.UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = c.do(ctx, http.MethodPut, accountURL(databaseURL, snap.AccountID), payload)
	return err
}

// Get reads one account. It returns nil when the account does not exist remotely.
func (c *Client) Get(ctx context.Context, databaseURL, accountID string) (*Record, error) {
	body, err := c.do(ctx, http.MethodGet, accountURL(databaseURL, accountID), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(accountID, body)
}

// List reads every account. Keys are listed shallowly and fetched in parallel.
func (c *Client) List(ctx context.Context, databaseURL string) ([]Record, error) {
	listURL := strings.TrimRight(databaseURL, "/") + "/accounts.json?shallow=true"
	body, err := c.do(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}

	var keys []string
	gjson.ParseBytes(body).ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	sort.Strings(keys)

	records := make([]*Record, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	for i, key := range keys {
		g.Go(func() error {
			recBody, err := c.do(gctx, http.MethodGet, accountURL(databaseURL, key), nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(key, recBody)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// decodeRecord parses an account body. key is the sanitized path segment,
// used when the stored document lacks the original accountId.
func decodeRecord(key string, body []byte) (*Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON for account %s", key)
	}
	doc := gjson.ParseBytes(body)
	if doc.Type == gjson.Null {
		return nil, nil
	}

	var snap models.UsageSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", key, err)
	}
	if snap.AccountID == "" {
		snap.AccountID = key
	}

	rec := &Record{AccountID: snap.AccountID, Snapshot: &snap}
	if ms := doc.Get("syncTime").Int(); ms > 0 {
		rec.SyncTime = time.UnixMilli(ms)
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, redact(target), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%s %s returned status %d: %s", method, redact(target), resp.StatusCode, msg)
	}
	return body, nil
}

// redact drops the query string, which may carry an auth token.
func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
