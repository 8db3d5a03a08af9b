package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
)

var (
	//go:embed template/coordinator.txt
	coordinatorRaw string

	//go:embed template/domain_agent.txt
	domainAgentRaw string
)

var (
	coordinatorTmpl = template.Must(template.New("coordinator").Parse(strings.TrimSpace(coordinatorRaw)))
	domainAgentTmpl = template.Must(template.New("domain_agent").Parse(strings.TrimSpace(domainAgentRaw)))
)

// ToolLine is one entry of the tool list shown to the coordinator.
type ToolLine struct {
	Name        string
	Description string
}

// Coordinator renders the coordinator system prompt for the given tools.
func Coordinator(tools []ToolLine) (string, error) {
	if len(tools) == 0 {
		return "", fmt.Errorf("%w: coordinator needs at least one tool", contractx.ErrPromptMissing)
	}
	return render(coordinatorTmpl, struct{ Tools []ToolLine }{Tools: tools})
}

// DomainAgent renders the system prompt of a single-domain sub-agent.
func DomainAgent(domain contractx.Domain, toolName string) (string, error) {
	d := strings.TrimSpace(string(domain))
	if d == "" || strings.TrimSpace(toolName) == "" {
		return "", fmt.Errorf("%w: domain agent needs domain and tool", contractx.ErrPromptMissing)
	}
	return render(domainAgentTmpl, struct {
		Title  string
		Domain string
		Tool   string
	}{
		Title:  strings.ToUpper(d[:1]) + d[1:],
		Domain: d,
		Tool:   toolName,
	})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: render %s: %v", contractx.ErrPromptMissing, t.Name(), err)
	}
	return buf.String(), nil
}
