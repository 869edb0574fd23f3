package draft

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

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
)

const (
	defaultAPIURL  = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

type Config struct {
	APIURL      string
	Model       string
	APIKey      ports.TokenFunc
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Persona     string
}

// Drafter asks an OpenAI-compatible chat completions endpoint for a JSON
// decision and maps it onto the drafting port.
type Drafter struct {
	cfg      Config
	client   *http.Client
	executor failsafe.Executor[string]
	logger   logging.Logger
}

var _ ports.Drafter = (*Drafter)(nil)

type Option func(*Drafter)

func WithHTTPClient(client *http.Client) Option {
	return func(d *Drafter) {
		if client != nil {
			d.client = client
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(d *Drafter) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func New(cfg Config, opts ...Option) *Drafter {
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.APIKey == nil {
		cfg.APIKey = func(context.Context) (string, error) { return "", nil }
	}

	d := &Drafter{
		cfg:    cfg,
		client: &http.Client{},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.executor = failsafe.With[string](timeout.NewBuilder[string](cfg.Timeout).Build())
	return d
}

func (d *Drafter) DraftReply(ctx context.Context, req ports.ReplyDraftRequest) (ports.ReplyDraft, error) {
	obj, err := d.completeJSON(ctx, req.Purpose, replyPrompt(req))
	if err != nil {
		return ports.ReplyDraft{}, err
	}

	out := ports.ReplyDraft{
		ShouldRespond: boolField(obj, "should_reply"),
		Text:          stringField(obj, "content"),
		Diary:         stringField(obj, "diary"),
	}
	if out.Text == "" {
		out.ShouldRespond = false
	}
	return out, nil
}

func (d *Drafter) ChooseThread(ctx context.Context, req ports.BrowseRequest) (ports.BrowseChoice, error) {
	obj, err := d.completeJSON(ctx, "browse", browsePrompt(req))
	if err != nil {
		return ports.BrowseChoice{}, err
	}

	choice := ports.BrowseChoice{
		Action:      strings.ToLower(stringField(obj, "action")),
		ThreadTitle: stringField(obj, "thread_title"),
		Diary:       stringField(obj, "diary"),
	}
	if id, ok := int64Field(obj, "thread_id"); ok {
		choice.ThreadID = &id
	}
	if choice.Action == ports.BrowseActionReply && choice.ThreadID == nil {
		return ports.BrowseChoice{}, fmt.Errorf("%w: reply_thread without thread_id", domain.ErrDraftInvalid)
	}
	return choice, nil
}

func (d *Drafter) DraftThread(ctx context.Context, req ports.ThreadDraftRequest) (ports.ThreadDraft, error) {
	obj, err := d.completeJSON(ctx, "proactive_post", threadPrompt(req))
	if err != nil {
		return ports.ThreadDraft{}, err
	}

	return ports.ThreadDraft{
		ShouldPost: boolField(obj, "should_post"),
		Category:   strings.ToLower(stringField(obj, "category")),
		Title:      stringField(obj, "title"),
		Body:       stringField(obj, "content"),
		Reason:     stringField(obj, "reason"),
	}, nil
}

func (d *Drafter) completeJSON(ctx context.Context, purpose, prompt string) (map[string]any, error) {
	content, err := d.complete(ctx, purpose, prompt)
	if err != nil {
		return nil, err
	}

	obj, err := ParseObject(content)
	if err != nil {
		d.logger.WithFields(logging.Fields{
			"purpose": purpose,
			"model":   d.cfg.Model,
			"preview": preview(content, 200),
		}).Warn("drafter returned invalid json")
		return nil, err
	}
	return obj, nil
}

func (d *Drafter) complete(ctx context.Context, purpose, prompt string) (string, error) {
	if strings.TrimSpace(d.cfg.Model) == "" {
		return "", errors.New("drafter model is required")
	}
	apiKey, err := d.cfg.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve drafter api key: %w", err)
	}

	payload, err := json.Marshal(chatRequest{
		Model: d.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(d.cfg.Persona)},
			{Role: "user", Content: prompt},
		},
		Temperature:    d.cfg.Temperature,
		MaxTokens:      d.cfg.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	// The deadline on callCtx reaches the in-flight request; the timeout
	// policy alone only abandons it.
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	started := time.Now()
	content, err := d.executor.WithContext(callCtx).GetWithExecution(func(exec failsafe.Execution[string]) (string, error) {
		return d.post(exec.Context(), strings.TrimSpace(apiKey), payload)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, timeout.ErrExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", domain.ErrDraftTimeout, d.cfg.Timeout)
		}
		return "", err
	}

	d.logger.WithFields(logging.Fields{
		"purpose":  purpose,
		"model":    d.cfg.Model,
		"duration": time.Since(started).String(),
	}).Debug("drafter completion")
	return content, nil
}

func (d *Drafter) post(ctx context.Context, apiKey string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.APIURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("chat completions: unexpected status %s: %s", resp.Status, preview(strings.TrimSpace(string(body)), 200))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", domain.ErrDraftInvalid, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in chat response", domain.ErrDraftInvalid)
	}
	return decoded.Choices[0].Message.Content, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
