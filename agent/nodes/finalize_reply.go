package coordinatornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Answer)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: reasoning returned an empty answer", contractx.ErrValidation)
	}
	return GraphOutput{ThreadID: in.ThreadID, Reply: reply, ToolCalls: in.ToolCalls, History: len(in.History)}, nil
}
