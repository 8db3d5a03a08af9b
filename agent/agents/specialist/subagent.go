package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	promptx "github.com/tanpawarit/Chative-Analytics-Router/agent/prompt"
	toolx "github.com/tanpawarit/Chative-Analytics-Router/agent/tool"
)

// SubAgentTool exposes a single-domain ReAct agent as one coordinator tool.
type SubAgentTool struct {
	name     string
	desc     string
	domain   contractx.Domain
	reasoner *reactReasoner
}

var _ einotool.InvokableTool = (*SubAgentTool)(nil)

func SubAgentName(domain contractx.Domain) string {
	return string(domain) + "_agent"
}

func NewSubAgentTool(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	domainTool *toolx.DomainTool,
	maxSteps int,
) (*SubAgentTool, error) {
	if domainTool == nil {
		return nil, fmt.Errorf("%w: domain tool is required", contractx.ErrConfiguration)
	}
	b := domainTool.Binding()

	systemPrompt, err := promptx.DomainAgent(b.Domain, b.Tool)
	if err != nil {
		return nil, err
	}
	reasoner, err := newReactReasoner(ctx, chatModel, systemPrompt, []einotool.BaseTool{domainTool}, maxSteps)
	if err != nil {
		return nil, fmt.Errorf("build %s sub-agent: %w", b.Domain, err)
	}

	return &SubAgentTool{
		name:     SubAgentName(b.Domain),
		desc:     fmt.Sprintf("Delegate %s questions to the %s agent. %s", b.Domain, b.Domain, b.Description),
		domain:   b.Domain,
		reasoner: reasoner,
	}, nil
}

func (t *SubAgentTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolx.QuestionToolInfo(t.name, t.desc), nil
}

// InvokableRun runs the sub-agent without coordinator history. Failures come
// back as result text like the flat domain tools.
func (t *SubAgentTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...einotool.Option) (string, error) {
	question, err := toolx.ParseQuestion(argumentsInJSON)
	if err != nil {
		return toolx.ErrorResult(err), nil
	}

	out, err := t.reasoner.runner.Invoke(ctx, contractx.ReasonRequest{Question: question})
	if err != nil {
		log.Warn().
			Err(err).
			Str("tool", t.name).
			Str("domain", string(t.domain)).
			Msg("sub-agent failed")
		return toolx.ErrorResult(err), nil
	}
	return out.Answer, nil
}
