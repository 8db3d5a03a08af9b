package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Analytics-Router/agent/agents/coordinator"
	"github.com/tanpawarit/Chative-Analytics-Router/agent/agents/specialist"
	analyticsx "github.com/tanpawarit/Chative-Analytics-Router/agent/analytics"
	llmx "github.com/tanpawarit/Chative-Analytics-Router/agent/llm"
	retryx "github.com/tanpawarit/Chative-Analytics-Router/agent/retry"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
	toolx "github.com/tanpawarit/Chative-Analytics-Router/agent/tool"
	azureopenaix "github.com/tanpawarit/Chative-Analytics-Router/pkg/azureopenai"
	configx "github.com/tanpawarit/Chative-Analytics-Router/pkg/config"
	logx "github.com/tanpawarit/Chative-Analytics-Router/pkg/logger"
	openrouterx "github.com/tanpawarit/Chative-Analytics-Router/pkg/openrouter"
	secretsx "github.com/tanpawarit/Chative-Analytics-Router/pkg/secrets"
)

type AppConfig struct {
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"300s"`
	HTTPAddr       string        `envconfig:"HTTP_ADDR" default:":8080"`
	TurnRetries    int           `envconfig:"TURN_RETRIES" default:"3"`
}

// runtime carries everything a front end needs to serve turns.
type runtime struct {
	coord   *coordinator.Coordinator
	store   statex.Store
	policy  retryx.Policy
	timeout time.Duration
	addr    string
}

func (r *runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// bootstrap loads the env file, sets up logging and resolves ssm: secrets.
func bootstrap(ctx context.Context, envFile string) error {
	configx.SetEnvFile(envFile)
	if err := configx.Load(); err != nil {
		return err
	}

	logCfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	logx.Init(*logCfg)

	if len(secretsx.References()) == 0 {
		return nil
	}
	client, err := secretsx.NewFromDefaultConfig(ctx)
	if err != nil {
		return err
	}
	return secretsx.ResolveEnv(ctx, client)
}

func openStore(ctx context.Context) (statex.Store, error) {
	cfg, err := configx.New[statex.Config]("STORE")
	if err != nil {
		return nil, fmt.Errorf("store config: %w", err)
	}
	return statex.Open(ctx, *cfg)
}

func loadLLMConfig() (llmx.Config, error) {
	cfg, err := configx.New[llmx.Config]("")
	if err != nil {
		return llmx.Config{}, fmt.Errorf("llm config: %w", err)
	}
	azure, err := configx.New[azureopenaix.Config]("AZURE_OPENAI")
	if err != nil {
		return llmx.Config{}, fmt.Errorf("azure openai config: %w", err)
	}
	openrouter, err := configx.New[openrouterx.Config]("OPENROUTER")
	if err != nil {
		return llmx.Config{}, fmt.Errorf("openrouter config: %w", err)
	}
	cfg.Azure = *azure
	cfg.OpenRouter = *openrouter
	return *cfg, nil
}

// newRuntime wires config, store, analytics client, model and coordinator.
func newRuntime(ctx context.Context, envFile string) (*runtime, error) {
	if err := bootstrap(ctx, envFile); err != nil {
		return nil, err
	}

	appCfg, err := configx.New[AppConfig]("")
	if err != nil {
		return nil, fmt.Errorf("app config: %w", err)
	}
	genieCfg, err := configx.New[analyticsx.Config]("GENIE")
	if err != nil {
		return nil, fmt.Errorf("genie config: %w", err)
	}
	spaces, err := configx.New[toolx.Config]("GENIE")
	if err != nil {
		return nil, fmt.Errorf("genie spaces: %w", err)
	}
	coordCfg, err := configx.New[coordinator.Config]("COORDINATOR")
	if err != nil {
		return nil, fmt.Errorf("coordinator config: %w", err)
	}
	llmCfg, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	genie, err := analyticsx.NewClient(*genieCfg)
	if err != nil {
		return nil, err
	}
	domainTools, err := toolx.BuildDomainTools(*spaces, genie)
	if err != nil {
		return nil, err
	}
	chatModel, err := llmx.New(ctx, llmCfg)
	if err != nil {
		return nil, err
	}
	reasoner, err := specialist.NewReasoner(ctx, specialist.Config{
		Mode:     coordCfg.Mode,
		MaxSteps: coordCfg.MaxSteps,
	}, chatModel, domainTools)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	coord, err := coordinator.New(store, reasoner, *coordCfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	policy := retryx.DefaultPolicy("coordinator.turn")
	if appCfg.TurnRetries > 0 {
		policy.MaxAttempts = appCfg.TurnRetries
	}

	log.Info().
		Str("mode", string(coord.Mode())).
		Int("domains", len(domainTools)).
		Msg("router ready")

	return &runtime{
		coord:   coord,
		store:   store,
		policy:  policy,
		timeout: appCfg.RequestTimeout,
		addr:    appCfg.HTTPAddr,
	}, nil
}
