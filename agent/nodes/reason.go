package coordinatornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
)

func Reason(ctx context.Context, in *GraphState, reasoner contractx.Reasoner) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	out, err := reasoner.Reason(ctx, contractx.ReasonRequest{
		ThreadID: in.ThreadID,
		Question: in.Text,
		History:  in.History,
	})
	if err != nil {
		return nil, err
	}

	in.Answer = out.Answer
	in.ToolCalls = out.ToolCalls
	return in, nil
}
