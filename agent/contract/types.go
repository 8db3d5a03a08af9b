package contract

import (
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
)

// Domain names an analytics backend the router can dispatch to.
type Domain string

const (
	DomainSales     Domain = "sales"
	DomainCustomer  Domain = "customer"
	DomainInventory Domain = "inventory"
)

// Mode selects how domains are exposed to the reasoning step.
type Mode string

const (
	// ModeTools gives the coordinator one flat tool per domain.
	ModeTools Mode = "tools"
	// ModeAgents wraps each domain in its own sub-agent exposed as a tool.
	ModeAgents Mode = "agents"
)

func (m Mode) Valid() bool {
	return m == ModeTools || m == ModeAgents
}

type ReasonRequest struct {
	ThreadID string           `json:"thread_id"`
	Question string           `json:"question"`
	History  []statex.Message `json:"history,omitempty"`
}

type ReasonResponse struct {
	Answer    string     `json:"answer"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall records one tool invocation made while answering.
type ToolCall struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
}
