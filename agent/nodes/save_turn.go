package coordinatornode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
)

// SaveTurn appends the question and the answer in one write. It runs only
// after reasoning succeeded, so a failed turn leaves the thread untouched.
func SaveTurn(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(in.Answer) == "" {
		return nil, fmt.Errorf("%w: reasoning returned an empty answer", contractx.ErrSchemaViolation)
	}

	user := statex.Message{Role: statex.RoleUser, Content: in.Text, CreatedAt: in.Now}
	assistant := statex.Message{Role: statex.RoleAssistant, Content: in.Answer, CreatedAt: in.Now}
	if err := store.Append(ctx, in.ThreadID, user, assistant); err != nil {
		return nil, fmt.Errorf("save turn thread=%s: %w", in.ThreadID, err)
	}
	return in, nil
}
