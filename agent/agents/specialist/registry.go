package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	promptx "github.com/tanpawarit/Chative-Analytics-Router/agent/prompt"
	toolx "github.com/tanpawarit/Chative-Analytics-Router/agent/tool"
)

type Config struct {
	Mode     contractx.Mode
	MaxSteps int
}

// NewReasoner builds the coordinator's reasoning step. In ModeTools the
// domain tools are handed to the model directly; in ModeAgents each one is
// wrapped in its own sub-agent first.
func NewReasoner(
	ctx context.Context,
	cfg Config,
	chatModel einomodel.ToolCallingChatModel,
	domainTools []*toolx.DomainTool,
) (contractx.Reasoner, error) {
	if cfg.Mode == "" {
		cfg.Mode = contractx.ModeTools
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown coordinator mode %q", contractx.ErrConfiguration, cfg.Mode)
	}
	if len(domainTools) == 0 {
		return nil, fmt.Errorf("%w: no domain tools configured", contractx.ErrConfiguration)
	}

	tools, err := buildTools(ctx, cfg, chatModel, domainTools)
	if err != nil {
		return nil, err
	}

	lines := make([]promptx.ToolLine, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: tool info: %v", contractx.ErrConfiguration, err)
		}
		lines = append(lines, promptx.ToolLine{Name: info.Name, Description: info.Desc})
	}
	systemPrompt, err := promptx.Coordinator(lines)
	if err != nil {
		return nil, err
	}

	wrapped, err := recorded(ctx, tools)
	if err != nil {
		return nil, err
	}
	return newReactReasoner(ctx, chatModel, systemPrompt, wrapped, cfg.MaxSteps)
}

func buildTools(
	ctx context.Context,
	cfg Config,
	chatModel einomodel.ToolCallingChatModel,
	domainTools []*toolx.DomainTool,
) ([]einotool.InvokableTool, error) {
	out := make([]einotool.InvokableTool, 0, len(domainTools))
	for _, dt := range domainTools {
		if cfg.Mode == contractx.ModeTools {
			out = append(out, dt)
			continue
		}
		sub, err := NewSubAgentTool(ctx, chatModel, dt, cfg.MaxSteps)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}
