package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	azureopenaix "github.com/tanpawarit/Chative-Analytics-Router/pkg/azureopenai"
	openrouterx "github.com/tanpawarit/Chative-Analytics-Router/pkg/openrouter"
)

type Provider string

const (
	ProviderAzure      Provider = "azure"
	ProviderOpenRouter Provider = "openrouter"
)

// Config selects the chat model backend. Each backend reads its own
// environment prefix: AZURE_OPENAI_* and OPENROUTER_*.
type Config struct {
	Provider   Provider            `envconfig:"LLM_PROVIDER" default:"azure"`
	Azure      azureopenaix.Config `ignored:"true"`
	OpenRouter openrouterx.Config  `ignored:"true"`
}

func (c Config) Validate() error {
	switch Provider(strings.ToLower(string(c.Provider))) {
	case ProviderAzure, "":
		if err := c.Azure.Validate(); err != nil {
			return fmt.Errorf("%w: %v", contractx.ErrConfiguration, err)
		}
	case ProviderOpenRouter:
		if err := c.OpenRouter.Validate(); err != nil {
			return fmt.Errorf("%w: %v", contractx.ErrConfiguration, err)
		}
	default:
		return fmt.Errorf("%w: unknown llm provider %q", contractx.ErrConfiguration, c.Provider)
	}
	return nil
}

// New returns the tool-calling chat model for the configured provider.
func New(ctx context.Context, c Config) (model.ToolCallingChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var (
		m   model.ToolCallingChatModel
		err error
	)
	provider := Provider(strings.ToLower(string(c.Provider)))
	switch provider {
	case ProviderOpenRouter:
		m, err = c.OpenRouter.New(ctx)
	default:
		provider = ProviderAzure
		m, err = azureopenaix.New(c.Azure)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrConfiguration, err)
	}

	log.Info().Str("provider", string(provider)).Msg("chat model ready")
	return m, nil
}
