package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
)

// ErrUnreachable means no agent answered on the admin address.
var ErrUnreachable = errors.New("admin api unreachable")

// Client talks to the admin API of a running agent.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(addr string, httpClient *http.Client) *Client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{baseURL: base, http: httpClient}
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context) (domain.Diagnostics, error) {
	var out domain.Diagnostics
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *Client) Journal(ctx context.Context, kind domain.JournalKind, limit int) ([]domain.JournalEntry, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if kind != "" {
		query.Set("type", string(kind))
	}

	var raw []JournalEntry
	if err := c.do(ctx, http.MethodGet, "/journal", query, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.JournalEntry, 0, len(raw))
	for _, entry := range raw {
		out = append(out, entry.Domain())
	}
	return out, nil
}

func (c *Client) TriggerBrowse(ctx context.Context, wait bool) (TriggerResponse, error) {
	query := url.Values{}
	if wait {
		query.Set("wait", "true")
	}
	var out TriggerResponse
	err := c.do(ctx, http.MethodPost, "/trigger/browse", query, &out)
	return out, err
}

func (c *Client) TriggerPost(ctx context.Context, force, wait bool) (TriggerResponse, error) {
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}
	if wait {
		query.Set("wait", "true")
	}
	var out TriggerResponse
	err := c.do(ctx, http.MethodPost, "/trigger/post", query, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build admin request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w at %s: %v", ErrUnreachable, c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read admin response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("admin api %s %s: %s", method, path, apiErr.Error)
		}
		var trig TriggerResponse
		if json.Unmarshal(body, &trig) == nil && trig.Error != "" {
			return fmt.Errorf("admin api %s %s: %s", method, path, trig.Error)
		}
		return fmt.Errorf("admin api %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode admin response: %w", err)
	}
	return nil
}
