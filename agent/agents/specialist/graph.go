package specialist

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
)

func compileReasonGraph(
	ctx context.Context,
	build func(context.Context, contractx.ReasonRequest) ([]*schema.Message, error),
	generate func(context.Context, []*schema.Message) (contractx.ReasonResponse, error),
) (compose.Runnable[contractx.ReasonRequest, contractx.ReasonResponse], error) {
	graph := compose.NewGraph[contractx.ReasonRequest, contractx.ReasonResponse]()

	if err := graph.AddLambdaNode("build_messages", compose.InvokableLambda(build)); err != nil {
		return nil, fmt.Errorf("add reason build node: %w", err)
	}
	if err := graph.AddLambdaNode("react", compose.InvokableLambda(generate)); err != nil {
		return nil, fmt.Errorf("add reason react node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "build_messages"); err != nil {
		return nil, fmt.Errorf("add reason edge start->build: %w", err)
	}
	if err := graph.AddEdge("build_messages", "react"); err != nil {
		return nil, fmt.Errorf("add reason edge build->react: %w", err)
	}
	if err := graph.AddEdge("react", compose.END); err != nil {
		return nil, fmt.Errorf("add reason edge react->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("specialist.reason_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile reason graph: %w", err)
	}
	return runner, nil
}
