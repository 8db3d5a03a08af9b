package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	analyticsx "github.com/tanpawarit/Chative-Analytics-Router/agent/analytics"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
)

// Asker sends a question to one analytics space.
type Asker interface {
	Ask(ctx context.Context, spaceID, question string) (analyticsx.Answer, error)
}

// Binding ties a domain to its analytics space and routing description.
type Binding struct {
	Domain      contractx.Domain
	Tool        string
	SpaceID     string
	Description string
}

// DomainTool is the single adapter type behind every domain tool.
type DomainTool struct {
	binding Binding
	asker   Asker
}

var _ einotool.InvokableTool = (*DomainTool)(nil)

type questionArgs struct {
	Question string `json:"question"`
}

func NewDomainTool(b Binding, asker Asker) (*DomainTool, error) {
	b.SpaceID = strings.TrimSpace(b.SpaceID)
	b.Tool = strings.TrimSpace(b.Tool)
	if b.SpaceID == "" {
		return nil, fmt.Errorf("%w: space id for domain=%s is not set", contractx.ErrConfiguration, b.Domain)
	}
	if b.Tool == "" {
		return nil, fmt.Errorf("%w: tool name for domain=%s is not set", contractx.ErrConfiguration, b.Domain)
	}
	if asker == nil {
		return nil, fmt.Errorf("%w: analytics client is required", contractx.ErrConfiguration)
	}
	return &DomainTool{binding: b, asker: asker}, nil
}

func (t *DomainTool) Binding() Binding {
	return t.binding
}

// Invoke asks the bound space and returns the answer text unchanged.
func (t *DomainTool) Invoke(ctx context.Context, question string) (string, error) {
	answer, err := t.asker.Ask(ctx, t.binding.SpaceID, question)
	if err != nil {
		return "", err
	}
	return answer.Text, nil
}

func (t *DomainTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return QuestionToolInfo(t.binding.Tool, t.binding.Description), nil
}

// InvokableRun reports failures as result text so the reasoning step can
// explain them instead of aborting the turn.
func (t *DomainTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...einotool.Option) (string, error) {
	question, err := ParseQuestion(argumentsInJSON)
	if err != nil {
		return ErrorResult(err), nil
	}

	answer, err := t.Invoke(ctx, question)
	if err != nil {
		log.Warn().
			Err(err).
			Str("tool", t.binding.Tool).
			Str("domain", string(t.binding.Domain)).
			Msg("domain tool failed")
		return ErrorResult(err), nil
	}
	return answer, nil
}

// QuestionToolInfo describes a tool taking a single natural-language question.
func QuestionToolInfo(name, desc string) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: name,
		Desc: desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": {Type: schema.String, Desc: "A specific, detailed natural-language question", Required: true},
		}),
	}
}

func ParseQuestion(argumentsInJSON string) (string, error) {
	var args questionArgs
	if raw := strings.TrimSpace(argumentsInJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", fmt.Errorf("%w: invalid tool arguments: %v", contractx.ErrValidation, err)
		}
	}
	question := strings.TrimSpace(args.Question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", contractx.ErrValidation)
	}
	return question, nil
}

func ErrorResult(err error) string {
	return "error: " + err.Error()
}
