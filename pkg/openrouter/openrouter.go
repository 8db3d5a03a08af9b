package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	retryx "github.com/tanpawarit/Chative-Analytics-Router/agent/retry"
)

var (
	// ReasoningBlacklist lists models whose reasoning output must be disabled.
	ReasoningBlacklist = map[string]bool{
		"x-ai/grok-4.1-fast": true,
	}
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY"`
	Model              string        `envconfig:"MODEL"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" default:"60s"`
	MaxRetries         int           `envconfig:"MAX_RETRIES" default:"3"`
	SiteURL            string        `envconfig:"SITE_URL"`
	SiteName           string        `envconfig:"SITE_NAME"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("openrouter: base url is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("openrouter: api key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("openrouter: model is required")
	}
	return nil
}

// HTTPClient returns a client that retries throttling and gateway errors and
// tags requests with the OpenRouter attribution headers.
func (c Config) HTTPClient() *http.Client {
	var rt http.RoundTripper = retryx.NewTransport(http.DefaultTransport, c.retryPolicy())
	if c.SiteURL != "" || c.SiteName != "" {
		rt = &headerTransport{base: rt, siteURL: c.SiteURL, siteName: c.SiteName}
	}
	return &http.Client{Timeout: c.Timeout, Transport: rt}
}

// retryPolicy counts MaxRetries as retries after the first request, the same
// way the Azure client's option.WithMaxRetries does.
func (c Config) retryPolicy() retryx.Policy {
	p := retryx.DefaultPolicy("openrouter.http")
	if c.MaxRetries >= 0 {
		p.MaxAttempts = c.MaxRetries + 1
	}
	return p
}

// New builds an eino chat model talking to OpenRouter.
func (c Config) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	modelName := strings.TrimSpace(c.Model)
	maxTokens := c.MaxCompletionToken
	temp := c.Temperature

	conf := &openaimodel.ChatModelConfig{
		BaseURL:     strings.TrimRight(c.BaseURL, "/"),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       modelName,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
		HTTPClient:  c.HTTPClient(),
	}

	if ReasoningBlacklist[modelName] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{
				"exclude": true,
				"effort":  "none",
			},
		}
	}

	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create chat model: %w", err)
	}
	return m, nil
}

type headerTransport struct {
	base     http.RoundTripper
	siteURL  string
	siteName string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.siteURL != "" {
		r.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.siteName != "" {
		r.Header.Set("X-Title", t.siteName)
	}
	return t.base.RoundTrip(r)
}
