package azureopenai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

type Config struct {
	Endpoint   string        `envconfig:"ENDPOINT"`
	APIKey     string        `envconfig:"API_KEY"`
	Deployment string        `envconfig:"DEPLOYMENT" default:"gpt-5"`
	APIVersion string        `envconfig:"API_VERSION" default:"2025-01-01-preview"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"3"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"90s"`
}

func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api key")
	}
	if strings.TrimSpace(c.Deployment) == "" {
		missing = append(missing, "deployment")
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		missing = append(missing, "api version")
	}
	if len(missing) > 0 {
		return fmt.Errorf("azure openai: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ChatModel adapts the Azure OpenAI chat completions API to eino.
type ChatModel struct {
	client     openai.Client
	deployment string
	tools      []openai.ChatCompletionToolParam
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

// New builds a chat model. Extra request options are appended after the
// Azure ones, which lets tests swap the HTTP client.
func New(cfg Config, opts ...option.RequestOption) (*ChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reqOpts := []option.RequestOption{
		azure.WithEndpoint(strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"), strings.TrimSpace(cfg.APIVersion)),
		azure.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	return &ChatModel{
		client:     openai.NewClient(reqOpts...),
		deployment: strings.TrimSpace(cfg.Deployment),
	}, nil
}

func WithHTTPClient(c *http.Client) option.RequestOption {
	return option.WithHTTPClient(c)
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	msgs, err := toParams(input)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.deployment),
		Messages: msgs,
	}
	if len(m.tools) > 0 {
		params.Tools = m.tools
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("azure openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("azure openai: empty choices")
	}

	choice := resp.Choices[0]
	out := &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: choice.FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
			},
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out, nil
}

// Stream delivers the full completion as a single chunk.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	params, err := toolParams(tools)
	if err != nil {
		return nil, err
	}
	return &ChatModel{client: m.client, deployment: m.deployment, tools: params}, nil
}

func toParams(input []*schema.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openai.SystemMessage(msg.Content))
		case schema.User:
			out = append(out, openai.UserMessage(msg.Content))
		case schema.Tool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case schema.Assistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			return nil, fmt.Errorf("azure openai: unsupported role %q", msg.Role)
		}
	}
	return out, nil
}

func toolParams(tools []*schema.ToolInfo) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, info := range tools {
		if info == nil {
			continue
		}
		params := openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
		if info.ParamsOneOf != nil {
			s, err := info.ParamsOneOf.ToOpenAPIV3()
			if err != nil {
				return nil, fmt.Errorf("azure openai: tool %s schema: %w", info.Name, err)
			}
			if s != nil {
				raw, err := json.Marshal(s)
				if err != nil {
					return nil, fmt.Errorf("azure openai: tool %s schema: %w", info.Name, err)
				}
				params = openai.FunctionParameters{}
				if err := json.Unmarshal(raw, &params); err != nil {
					return nil, fmt.Errorf("azure openai: tool %s schema: %w", info.Name, err)
				}
			}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        info.Name,
				Description: openai.String(info.Desc),
				Parameters:  params,
			},
		})
	}
	return out, nil
}
