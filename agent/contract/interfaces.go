package contract

import "context"

// Reasoner answers a question given the thread history, calling domain tools as needed.
type Reasoner interface {
	Reason(ctx context.Context, req ReasonRequest) (ReasonResponse, error)
}
