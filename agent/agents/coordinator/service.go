package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	nodex "github.com/tanpawarit/Chative-Analytics-Router/agent/nodes"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
	metricsx "github.com/tanpawarit/Chative-Analytics-Router/pkg/metrics"
)

var (
	ErrInvalidThread  = statex.ErrInvalidThread
	ErrInvalidMessage = statex.ErrInvalidMessage
)

type Config struct {
	Mode         contractx.Mode `envconfig:"MODE" default:"tools"`
	MaxSteps     int            `envconfig:"MAX_STEPS" default:"12"`
	HistoryLimit int            `envconfig:"HISTORY_LIMIT" default:"40"`
}

type Reply struct {
	ThreadID  string               `json:"thread_id"`
	Text      string               `json:"reply"`
	ToolCalls []contractx.ToolCall `json:"tool_calls,omitempty"`
}

// Coordinator answers one question per call against a conversation thread.
type Coordinator struct {
	store    statex.Store
	reasoner contractx.Reasoner

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	mode         contractx.Mode
	historyLimit int

	now func() time.Time
}

func New(store statex.Store, reasoner contractx.Reasoner, cfg Config) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if reasoner == nil {
		return nil, errors.New("reasoner is required")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = contractx.ModeTools
	}

	c := &Coordinator{
		store:        store,
		reasoner:     reasoner,
		mode:         mode,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
	}

	graphRunner, err := c.compileAskGraph(context.Background())
	if err != nil {
		return nil, err
	}
	c.graphRunner = graphRunner

	return c, nil
}

// Ask runs one turn. On error nothing is appended to the thread.
func (c *Coordinator) Ask(ctx context.Context, threadID, question string) (Reply, error) {
	start := time.Now()
	out, err := c.graphRunner.Invoke(ctx, nodex.GraphInput{
		ThreadID: threadID,
		Text:     question,
	})
	metricsx.TurnDuration.WithLabelValues(string(c.mode), metricsx.Outcome(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error().
			Err(err).
			Str("thread_id", threadID).
			Str("mode", string(c.mode)).
			Msg("coordinator turn failed")
		return Reply{}, err
	}

	log.Info().
		Str("thread_id", threadID).
		Str("mode", string(c.mode)).
		Int("history", out.History).
		Int("tool_calls", len(out.ToolCalls)).
		Dur("elapsed", time.Since(start)).
		Msg("coordinator turn completed")

	return Reply{ThreadID: out.ThreadID, Text: out.Reply, ToolCalls: out.ToolCalls}, nil
}

// History returns the stored messages of a thread.
func (c *Coordinator) History(ctx context.Context, threadID string) ([]statex.Message, error) {
	return c.store.Load(ctx, threadID)
}

func (c *Coordinator) Mode() contractx.Mode {
	return c.mode
}
