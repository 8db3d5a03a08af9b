package specialist

import (
	"context"
	"fmt"
	"strings"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
)

// DefaultMaxSteps bounds one reasoning run.
const DefaultMaxSteps = 12

// reactReasoner answers a question with a ReAct loop over the bound tools.
type reactReasoner struct {
	systemPrompt string
	agent        *react.Agent
	runner       compose.Runnable[contractx.ReasonRequest, contractx.ReasonResponse]
}

var _ contractx.Reasoner = (*reactReasoner)(nil)

func newReactReasoner(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	tools []einotool.BaseTool,
	maxSteps int,
) (*reactReasoner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrConfiguration)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: reasoner system prompt is empty", contractx.ErrPromptMissing)
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig:      compose.ToolsNodeConfig{Tools: tools},
		MaxStep:          maxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create react agent: %v", contractx.ErrConfiguration, err)
	}

	r := &reactReasoner{systemPrompt: systemPrompt, agent: agent}
	runner, err := compileReasonGraph(ctx, r.buildMessages, r.generate)
	if err != nil {
		return nil, fmt.Errorf("%w: compile reason graph: %v", contractx.ErrConfiguration, err)
	}
	r.runner = runner
	return r, nil
}

func (r *reactReasoner) Reason(ctx context.Context, req contractx.ReasonRequest) (contractx.ReasonResponse, error) {
	return r.runner.Invoke(ctx, req)
}

func (r *reactReasoner) buildMessages(_ context.Context, req contractx.ReasonRequest) ([]*schema.Message, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", contractx.ErrValidation)
	}

	msgs := make([]*schema.Message, 0, len(req.History)+2)
	msgs = append(msgs, schema.SystemMessage(r.systemPrompt))
	msgs = append(msgs, historyMessages(req.History)...)
	msgs = append(msgs, schema.UserMessage(question))
	return msgs, nil
}

func (r *reactReasoner) generate(ctx context.Context, msgs []*schema.Message) (contractx.ReasonResponse, error) {
	ctx, calls := withCallLog(ctx)
	out, err := r.agent.Generate(ctx, msgs)
	if err != nil {
		return contractx.ReasonResponse{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if out == nil {
		return contractx.ReasonResponse{}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}
	answer := strings.TrimSpace(out.Content)
	if answer == "" {
		return contractx.ReasonResponse{}, fmt.Errorf("%w: model returned an empty answer", contractx.ErrSchemaViolation)
	}
	return contractx.ReasonResponse{Answer: answer, ToolCalls: calls.snapshot()}, nil
}

// historyMessages converts stored turns into chat messages. Tool entries are
// not replayed since their call ids belong to a finished run.
func historyMessages(history []statex.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case statex.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case statex.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

type callLogKey struct{}

type callLog struct {
	mu    sync.Mutex
	calls []contractx.ToolCall
}

func withCallLog(ctx context.Context) (context.Context, *callLog) {
	l := &callLog{}
	return context.WithValue(ctx, callLogKey{}, l), l
}

func (l *callLog) add(c contractx.ToolCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *callLog) snapshot() []contractx.ToolCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return nil
	}
	return append([]contractx.ToolCall(nil), l.calls...)
}

// recordingTool notes every call made through it in the run's call log.
type recordingTool struct {
	name  string
	inner einotool.InvokableTool
}

func (t *recordingTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.inner.Info(ctx)
}

func (t *recordingTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	out, err := t.inner.InvokableRun(ctx, argumentsInJSON, opts...)
	if l, ok := ctx.Value(callLogKey{}).(*callLog); ok {
		l.add(contractx.ToolCall{Tool: t.name, Arguments: argumentsInJSON, Result: out})
	}
	return out, err
}

func recorded(ctx context.Context, tools []einotool.InvokableTool) ([]einotool.BaseTool, error) {
	out := make([]einotool.BaseTool, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: tool info: %v", contractx.ErrConfiguration, err)
		}
		out = append(out, &recordingTool{name: info.Name, inner: t})
	}
	return out, nil
}
