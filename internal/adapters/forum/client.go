package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/timeout"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
)

const (
	defaultTimeout   = 40 * time.Second
	threadPageSize   = 20
	maxListPageSize  = 50
	errorBodyPreview = 200
	maxResponseBytes = 4 << 20
)

type Config struct {
	APIBase string
	Token   ports.TokenFunc
	Timeout time.Duration
}

// Client talks to the forum REST API. Every call is bounded by a timeout
// policy and guarded by a circuit breaker that opens on transport failures and
// server errors.
type Client struct {
	apiBase  string
	token    ports.TokenFunc
	http     *http.Client
	executor failsafe.Executor[response]
	breaker  circuitbreaker.CircuitBreaker[response]
	logger   logging.Logger
}

var _ ports.ForumClient = (*Client)(nil)

type response struct {
	status      int
	contentType string
	body        []byte
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Token == nil {
		cfg.Token = func(context.Context) (string, error) { return "", nil }
	}

	c := &Client{
		apiBase: strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"),
		token:   cfg.Token,
		http:    &http.Client{},
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = circuitbreaker.NewBuilder[response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		HandleIf(func(resp response, err error) bool {
			return err != nil || resp.status >= http.StatusInternalServerError
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			c.logger.WithFields(logging.Fields{
				"from_state": event.OldState.String(),
				"to_state":   event.NewState.String(),
			}).Warn("forum circuit breaker state change")
		}).
		Build()
	c.executor = failsafe.With[response](c.breaker, timeout.NewBuilder[response](cfg.Timeout).Build())

	return c
}

func (c *Client) TokenConfigured(ctx context.Context) bool {
	token, err := c.token(ctx)
	return err == nil && strings.TrimSpace(token) != ""
}

func (c *Client) ReadContent(ctx context.Context, threadID int64, page int) (string, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(max(1, page)))
	query.Set("page_size", strconv.Itoa(threadPageSize))
	query.Set("format", "text")

	resp, err := c.do(ctx, "read thread", http.MethodGet, fmt.Sprintf("/api/threads/%d", threadID), query, nil)
	if err != nil {
		return "", err
	}
	return resp.text(), nil
}

func (c *Client) ListContent(ctx context.Context, filter domain.ListFilter) ([]domain.ThreadRef, error) {
	resp, err := c.do(ctx, "list threads", http.MethodGet, "/api/threads", listQuery(filter, false), nil)
	if err != nil {
		return nil, err
	}
	if resp.isText() {
		return nil, nil
	}

	var payload any
	dec := json.NewDecoder(bytes.NewReader(resp.body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, nil
	}
	return ExtractThreads(payload), nil
}

func (c *Client) BrowseContent(ctx context.Context, filter domain.ListFilter) (string, error) {
	resp, err := c.do(ctx, "browse threads", http.MethodGet, "/api/threads", listQuery(filter, true), nil)
	if err != nil {
		return "", err
	}
	return resp.text(), nil
}

// PublishReply answers inside a floor when the target names a reply, and adds
// a new floor to the thread otherwise.
func (c *Client) PublishReply(ctx context.Context, target domain.ReplyTarget, text string) (domain.Published, error) {
	body := map[string]string{"content": text}
	if target.ReplyID != nil {
		return c.publish(ctx, "reply floor", fmt.Sprintf("/api/replies/%d/sub_replies", *target.ReplyID), body)
	}
	return c.publish(ctx, "reply thread", fmt.Sprintf("/api/threads/%d/replies", target.ThreadID), body)
}

func (c *Client) PublishThread(ctx context.Context, title, body, category string) (domain.Published, error) {
	return c.publish(ctx, "create thread", "/api/threads", map[string]string{
		"title":    title,
		"content":  body,
		"category": category,
	})
}

func (c *Client) publish(ctx context.Context, op, path string, payload map[string]string) (domain.Published, error) {
	resp, err := c.do(ctx, op, http.MethodPost, path, nil, payload)
	if err != nil {
		return domain.Published{}, err
	}

	var out struct {
		ID json.Number `json:"id"`
	}
	dec := json.NewDecoder(bytes.NewReader(resp.body))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return domain.Published{}, nil
	}
	if id, err := out.ID.Int64(); err == nil {
		return domain.Published{ID: &id}, nil
	}
	return domain.Published{}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) (response, error) {
	if err := ctx.Err(); err != nil {
		return response{}, err
	}

	token, err := c.token(ctx)
	if err != nil {
		return response{}, &domain.APIError{Op: op, Message: fmt.Sprintf("resolve token: %v", err)}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return response{}, &domain.APIError{Op: op, Message: "Token not configured"}
	}
	if c.apiBase == "" {
		return response{}, &domain.APIError{Op: op, Message: "api_base not configured"}
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("encode %s request: %w", op, err)
		}
	}

	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := c.executor.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[response]) (response, error) {
		return c.roundTrip(exec.Context(), method, endpoint, token, body)
	})
	if err != nil {
		if ctx.Err() != nil {
			return response{}, ctx.Err()
		}
		return response{}, &domain.APIError{Op: op, Message: c.describe(err)}
	}

	c.logger.WithFields(logging.Fields{"op": op, "status": resp.status}).Debug("forum request")

	switch {
	case resp.status == http.StatusOK:
		return resp, nil
	case resp.status == http.StatusUnauthorized:
		return response{}, &domain.APIError{Op: op, Message: "Token invalid or expired"}
	case resp.status == http.StatusNotFound:
		return response{}, &domain.APIError{Op: op, Message: "Resource not found"}
	default:
		preview := strings.TrimSpace(string(resp.body))
		if preview == "" {
			preview = "No response"
		} else if len(preview) > errorBodyPreview {
			preview = preview[:errorBodyPreview]
		}
		return response{}, &domain.APIError{Op: op, Message: fmt.Sprintf("Request failed: %d - %s", resp.status, preview)}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint, token string, body []byte) (response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json, text/plain")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}
	return response{
		status:      httpResp.StatusCode,
		contentType: httpResp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

func (c *Client) describe(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, timeout.ErrExceeded), errors.Is(err, context.DeadlineExceeded):
		return "Request timeout"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "Forum temporarily unavailable (circuit open)"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "Request timeout"
	case isDialError(err):
		return "Cannot connect to server: " + c.apiBase
	default:
		return "Request error: " + err.Error()
	}
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Close drops idle keep-alive connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func listQuery(filter domain.ListFilter, text bool) url.Values {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(max(1, filter.Page)))
	query.Set("page_size", strconv.Itoa(min(pageSize, maxListPageSize)))
	if text {
		query.Set("format", "text")
	}
	if filter.Category != "" {
		query.Set("category", filter.Category)
	}
	return query
}

func (r response) isText() bool {
	return strings.Contains(r.contentType, "text/plain")
}

// text returns the body of a text response, or the "text" member of a JSON
// object, or the raw body when neither applies.
func (r response) text() string {
	if r.isText() {
		return string(r.body)
	}
	var obj struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(r.body, &obj); err == nil && obj.Text != nil {
		return *obj.Text
	}
	return string(r.body)
}
