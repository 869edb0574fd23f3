package sse

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
	"strings"
	"syscall"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
)

// Disconnect reasons recorded on the observer.
const (
	ReasonCredentialMissing = "credential_missing"
	ReasonEndpointMissing   = "endpoint_missing"
	ReasonAuthFailed        = "auth_failed"
	ReasonStreamClosed      = "stream_closed"
	ReasonCancelled         = "cancelled"
	ReasonReadError         = "read_error"
	ReasonConnectRefused    = "connect_refused"
	ReasonConnectTimeout    = "connect_timeout"
	ReasonConnectError      = "connect_error"
)

const (
	streamPath            = "/sse/bot"
	readChunkSize         = 4096
	defaultFallbackDelay  = 10 * time.Second
	defaultConnectTimeout = 30 * time.Second
)

type Config struct {
	APIBase        string
	Token          ports.TokenFunc
	FallbackDelay  time.Duration
	ConnectTimeout time.Duration
}

// Connector consumes the forum's bot event stream. It holds at most one
// connection at a time; reconnecting is the caller's job.
type Connector struct {
	apiBase       string
	token         ports.TokenFunc
	fallbackDelay time.Duration

	client   *http.Client
	observer ports.StreamObserver
	metrics  ports.Metrics
	clock    ports.Clock
	logger   logging.Logger
}

var _ ports.EventStream = (*Connector)(nil)

type Option func(*Connector)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) {
		if client != nil {
			c.client = client
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(metrics ports.Metrics) Option {
	return func(c *Connector) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

func WithClock(clock ports.Clock) Option {
	return func(c *Connector) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewConnector(cfg Config, observer ports.StreamObserver, opts ...Option) *Connector {
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = defaultFallbackDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Token == nil {
		cfg.Token = func(context.Context) (string, error) { return "", nil }
	}
	if observer == nil {
		observer = nopObserver{}
	}

	// Only connecting is bounded; the stream itself stays open indefinitely.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.ConnectTimeout

	c := &Connector{
		apiBase:       strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"),
		token:         cfg.Token,
		fallbackDelay: cfg.FallbackDelay,
		client:        &http.Client{Transport: transport},
		observer:      observer,
		metrics:       ports.NopMetrics{},
		clock:         ports.SystemClock{},
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream opens one connection and hands every decoded event to handle, in
// order, until the connection ends. It returns how many events were handed
// over.
func (c *Connector) Stream(ctx context.Context, handle ports.EventHandler) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	token, err := c.token(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("resolve forum token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, c.fallback(ctx, ReasonCredentialMissing, fmt.Errorf("%w: realtime disabled", domain.ErrCredentialMissing))
	}
	if c.apiBase == "" {
		return 0, c.fallback(ctx, ReasonEndpointMissing, fmt.Errorf("%w: forum api_base not set", domain.ErrEndpointMissing))
	}

	resp, err := c.open(ctx, token)
	if err != nil {
		reason := ReasonConnectError
		switch {
		case ctx.Err() != nil:
			reason = ReasonCancelled
		case errors.Is(err, domain.ErrConnectRefused):
			reason = ReasonConnectRefused
		case errors.Is(err, domain.ErrConnectTimeout):
			reason = ReasonConnectTimeout
		}
		c.disconnected(reason, err.Error())
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.disconnected(ReasonAuthFailed, "event stream authentication failed")
		return 0, fmt.Errorf("open event stream: %w", domain.ErrAuthRejected)
	case resp.StatusCode != http.StatusOK:
		c.disconnected(fmt.Sprintf("http_%d", resp.StatusCode), fmt.Sprintf("event stream connection failed: %d", resp.StatusCode))
		return 0, fmt.Errorf("open event stream: %w: %d", domain.ErrUnexpectedStatus, resp.StatusCode)
	}

	c.observer.StreamConnected()
	c.metrics.StreamConnected()
	c.logger.Info("event stream connected")

	delivered, err := c.consume(ctx, resp.Body, handle)

	reason := ReasonStreamClosed
	switch {
	case ctx.Err() != nil:
		reason = ReasonCancelled
		err = ctx.Err()
	case err != nil:
		reason = ReasonReadError
		c.observer.RecordError(err.Error())
	}
	c.observer.StreamDisconnected(reason)
	return delivered, err
}

func (c *Connector) open(ctx context.Context, token string) (*http.Response, error) {
	endpoint := c.apiBase + streamPath + "?" + url.Values{"token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyDialError(err)
	}
	return resp, nil
}

func classifyDialError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("open event stream: %w", domain.ErrConnectRefused)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("open event stream: %w", domain.ErrConnectTimeout)
	default:
		return fmt.Errorf("open event stream: %w", err)
	}
}

// consume reads raw chunks until EOF, decoding and delivering each complete
// frame before the next read.
func (c *Connector) consume(ctx context.Context, body io.Reader, handle ports.EventHandler) (int, error) {
	var (
		decoder   FrameDecoder
		delivered int
	)
	chunk := make([]byte, readChunkSize)

	deliver := func(frames []Frame) {
		for _, frame := range frames {
			event, ok := c.decode(frame)
			if !ok {
				continue
			}
			handle(ctx, event)
			delivered++
		}
	}

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			deliver(decoder.Feed(chunk[:n]))
		}
		if errors.Is(err, io.EOF) {
			deliver(decoder.Flush())
			return delivered, nil
		}
		if err != nil {
			return delivered, fmt.Errorf("read event stream: %w", err)
		}
	}
}

// decode turns a frame payload into an event. Payloads that are not JSON
// objects are dropped.
func (c *Connector) decode(frame Frame) (domain.Event, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(frame.Data)))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		c.logger.WithFields(logging.Fields{
			"event": orDefault(frame.Event, "message"),
			"data":  truncate(frame.Data, 120),
		}).Debug("ignoring non-object event payload")
		return domain.Event{}, false
	}

	return EventFromPayload(frame.Event, payload, c.clock.Now()), true
}

// EventFromPayload maps a decoded payload onto a domain event. Numeric ids
// must be JSON integers; anything else is treated as absent.
func EventFromPayload(name string, payload map[string]any, receivedAt time.Time) domain.Event {
	kind := stringField(payload, "type")
	if kind == "" {
		kind = name
	}

	return domain.Event{
		Type:         domain.NormalizeEventType(kind),
		Name:         name,
		ThreadID:     intField(payload, "thread_id"),
		ReplyID:      intField(payload, "reply_id"),
		FromUserID:   intField(payload, "from_user_id"),
		UserID:       intField(payload, "user_id"),
		ThreadTitle:  stringField(payload, "thread_title"),
		FromUsername: stringField(payload, "from_username"),
		Author:       stringField(payload, "author"),
		Content:      stringField(payload, "content"),
		Message:      stringField(payload, "message"),
		ReceivedAt:   receivedAt,
	}
}

func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func intField(payload map[string]any, key string) *int64 {
	num, ok := payload[key].(json.Number)
	if !ok {
		return nil
	}
	v, err := num.Int64()
	if err != nil {
		return nil
	}
	return &v
}

// fallback records a configuration problem and waits before returning so the
// caller's loop does not spin.
func (c *Connector) fallback(ctx context.Context, reason string, err error) error {
	c.disconnected(reason, err.Error())
	c.logger.WithField("reason", reason).Warn("event stream not configured, retrying later")

	timer := time.NewTimer(c.fallbackDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return err
	}
}

func (c *Connector) disconnected(reason, msg string) {
	if msg != "" {
		c.observer.RecordError(msg)
	}
	c.observer.StreamDisconnected(reason)
}

// Close drops idle connections held by the client in use, including one
// supplied through WithHTTPClient.
func (c *Connector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

type nopObserver struct{}

func (nopObserver) StreamConnected()          {}
func (nopObserver) StreamDisconnected(string) {}
func (nopObserver) RecordError(string)        {}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
