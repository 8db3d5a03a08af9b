package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	retryx "github.com/tanpawarit/Chative-Analytics-Router/agent/retry"
	metricsx "github.com/tanpawarit/Chative-Analytics-Router/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxResponseSizeBytes = 4 << 20
	tracerName           = "github.com/tanpawarit/Chative-Analytics-Router/agent/analytics"
)

type Config struct {
	Host         string        `envconfig:"HOST" required:"true"`
	Token        string        `envconfig:"TOKEN" required:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"120s"`
	Retries      int           `envconfig:"RETRIES" default:"3"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	BaseDelay    time.Duration `envconfig:"BASE_DELAY" default:"1s"`
	MaxDelay     time.Duration `envconfig:"MAX_DELAY" default:"6s"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: genie host is required", contractx.ErrConfiguration)
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("%w: genie token is required", contractx.ErrConfiguration)
	}
	return nil
}

// Answer is the outcome of one Ask, including retry bookkeeping.
type Answer struct {
	Text           string
	ConversationID string
	MessageID      string
	Attempts       int
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithRetryPolicy overrides the backoff policy; MaxAttempts still follows Config.Retries.
func WithRetryPolicy(p retryx.Policy) Option {
	return func(c *Client) {
		attempts := c.policy.MaxAttempts
		c.policy = p
		c.policy.MaxAttempts = attempts
		if c.policy.Name == "" {
			c.policy.Name = "genie.ask"
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// Client talks to a Genie-style analytics service. Build it once and share it;
// it holds no per-question state.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	timeout      time.Duration
	pollInterval time.Duration
	policy       retryx.Policy
	tracer       trace.Tracer
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid genie host: %v", contractx.ErrConfiguration, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	attempts := cfg.Retries
	if attempts < 1 {
		attempts = 1
	}

	c := &Client{
		baseURL:      baseURL,
		token:        strings.TrimSpace(cfg.Token),
		httpClient:   &http.Client{},
		timeout:      timeout,
		pollInterval: pollInterval,
		policy: retryx.Policy{
			Name:        "genie.ask",
			MaxAttempts: attempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
		},
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Ask sends question to the space and returns the extracted answer text.
// Validation and permanent API errors fail fast; transient ones are retried.
func (c *Client) Ask(ctx context.Context, spaceID, question string) (Answer, error) {
	spaceID = strings.TrimSpace(spaceID)
	question = strings.TrimSpace(question)
	if spaceID == "" {
		return Answer{}, fmt.Errorf("%w: space id is required", contractx.ErrValidation)
	}
	if question == "" {
		return Answer{}, fmt.Errorf("%w: question is required", contractx.ErrValidation)
	}

	ctx, span := c.tracer.Start(ctx, "analytics.ask", trace.WithAttributes(
		attribute.String("genie.space_id", spaceID),
	))
	defer span.End()

	started := time.Now()
	var ref messageRef
	res := retryx.Call(ctx, func(ctx context.Context) (Answer, error) {
		return c.askOnce(ctx, spaceID, question, &ref)
	}, c.policy)

	err := res.Error()
	metricsx.QueryDuration.WithLabelValues(spaceID, metricsx.Outcome(err)).Observe(time.Since(started).Seconds())
	span.SetAttributes(attribute.Int("genie.attempts", res.Attempts))

	logger := log.With().Str("space_id", spaceID).Int("attempts", res.Attempts).Logger()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("genie question failed")
		return Answer{Attempts: res.Attempts}, err
	}

	answer := res.Value
	answer.Attempts = res.Attempts
	logger.Debug().Str("conversation_id", answer.ConversationID).Msg("genie question answered")
	return answer, nil
}

// messageRef identifies a started question. Once both ids are known a retry
// resumes polling that message instead of starting another conversation.
type messageRef struct {
	conversationID string
	messageID      string
}

func (r *messageRef) known() bool {
	return r.conversationID != "" && r.messageID != ""
}

func (c *Client) askOnce(ctx context.Context, spaceID, question string, ref *messageRef) (Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var msgPayload map[string]any
	if ref.known() {
		payload, err := c.poll(ctx, spaceID, ref)
		if err != nil {
			return Answer{}, c.wrapDeadline(ctx, err)
		}
		msgPayload = payload
	} else {
		start, err := c.do(ctx, http.MethodPost,
			fmt.Sprintf("/api/2.0/genie/spaces/%s/start-conversation", url.PathEscape(spaceID)),
			map[string]any{"content": question},
		)
		if err != nil {
			return Answer{}, c.wrapDeadline(ctx, err)
		}

		ref.conversationID = stringField(start, "conversation_id")
		ref.messageID = stringField(start, "message_id")
		msgPayload, _ = start["message"].(map[string]any)
		if msgPayload == nil {
			msgPayload = start
		}
		if ref.messageID == "" {
			ref.messageID = stringField(msgPayload, "id")
		}
		if ref.conversationID == "" {
			ref.conversationID = stringField(msgPayload, "conversation_id")
		}
	}

	for {
		msg, err := decodeMessage(msgPayload)
		if err != nil {
			return Answer{}, fmt.Errorf("genie: decode message: %w", err)
		}

		switch status := strings.ToUpper(strings.TrimSpace(msg.Status)); status {
		case "", "COMPLETED":
			return Answer{
				Text:           extractAnswer(msgPayload, question),
				ConversationID: ref.conversationID,
				MessageID:      ref.messageID,
			}, nil
		case "FAILED", "CANCELLED", "QUERY_RESULT_EXPIRED":
			return Answer{}, messageError(status, msg.Error)
		}

		if !ref.known() {
			return Answer{}, errors.New("genie: pending message without conversation or message id")
		}
		if err := wait(ctx, c.pollInterval); err != nil {
			return Answer{}, c.wrapDeadline(ctx, err)
		}

		msgPayload, err = c.poll(ctx, spaceID, ref)
		if err != nil {
			return Answer{}, c.wrapDeadline(ctx, err)
		}
	}
}

func (c *Client) poll(ctx context.Context, spaceID string, ref *messageRef) (map[string]any, error) {
	return c.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/2.0/genie/spaces/%s/conversations/%s/messages/%s",
			url.PathEscape(spaceID), url.PathEscape(ref.conversationID), url.PathEscape(ref.messageID)),
		nil,
	)
}

// wrapDeadline rewrites a per-attempt deadline as a timed-out error so the
// classifier treats it as transient.
func (c *Client) wrapDeadline(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("genie: timed out after %s waiting for answer: %w", c.timeout, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("genie: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("genie: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genie: execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("genie: read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newAPIError(resp.StatusCode, raw)
	}

	payload := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("genie: decode response: %w", err)
	}
	return payload, nil
}

func newAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var body struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && (body.ErrorCode != "" || body.Message != "") {
		apiErr.ErrorCode = body.ErrorCode
		apiErr.Message = body.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}

func messageError(status string, detail any) *MessageError {
	out := &MessageError{Status: status}
	switch d := detail.(type) {
	case string:
		out.Message = d
	case map[string]any:
		out.Message = stringField(d, "error")
		out.Type = stringField(d, "type")
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
