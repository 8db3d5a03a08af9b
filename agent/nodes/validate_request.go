package coordinatornode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
)

type GraphInput struct {
	ThreadID string
	Text     string
}

type GraphOutput struct {
	ThreadID  string
	Reply     string
	ToolCalls []contractx.ToolCall
	History   int
}

type GraphState struct {
	ThreadID string
	Text     string
	Now      time.Time

	History []statex.Message

	Answer    string
	ToolCalls []contractx.ToolCall
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		return nil, statex.ErrInvalidThread
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: question is empty", statex.ErrInvalidMessage)
	}

	now := time.Now().UTC()
	if nowFn != nil {
		now = nowFn().UTC()
	}

	return &GraphState{
		ThreadID: threadID,
		Text:     text,
		Now:      now,
	}, nil
}
