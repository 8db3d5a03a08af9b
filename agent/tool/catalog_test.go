package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	analyticsx "github.com/tanpawarit/Chative-Analytics-Router/agent/analytics"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
)

type askCall struct {
	spaceID  string
	question string
}

type fakeAsker struct {
	answer string
	err    error
	calls  []askCall
}

func (f *fakeAsker) Ask(ctx context.Context, spaceID, question string) (analyticsx.Answer, error) {
	f.calls = append(f.calls, askCall{spaceID: spaceID, question: question})
	if f.err != nil {
		return analyticsx.Answer{}, f.err
	}
	return analyticsx.Answer{Text: f.answer, Attempts: 1}, nil
}

func TestLoadCatalogEmbedded(t *testing.T) {
	t.Parallel()

	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(catalog.Domains) != 3 {
		t.Fatalf("expected 3 domains, got %d", len(catalog.Domains))
	}
	names := []string{catalog.Domains[0].Tool, catalog.Domains[1].Tool, catalog.Domains[2].Tool}
	if strings.Join(names, ",") != "sales_genie,customer_genie,inventory_genie" {
		t.Fatalf("unexpected tool names: %v", names)
	}
	for _, d := range catalog.Domains {
		if d.Description == "" {
			t.Fatalf("domain %s has no description", d.Domain)
		}
	}
}

func TestCatalogBindingsRequiredAndOptional(t *testing.T) {
	t.Parallel()

	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	bindings, err := catalog.Bindings(Config{SalesSpaceID: "S1", CustomerSpaceID: "C1"})
	if err != nil {
		t.Fatalf("Bindings() error = %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("optional inventory should be skipped, got %d bindings", len(bindings))
	}
	if bindings[0].SpaceID != "S1" || bindings[0].Domain != contractx.DomainSales {
		t.Fatalf("unexpected sales binding: %+v", bindings[0])
	}

	_, err = catalog.Bindings(Config{CustomerSpaceID: "C1", InventorySpaceID: "I1"})
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing sales space, got %v", err)
	}
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	t.Parallel()

	raw := []byte(`
domains:
  - {domain: sales, tool: x}
  - {domain: customer, tool: x}
`)
	if _, err := ParseCatalog(raw); !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestNewDomainToolRequiresSpaceID(t *testing.T) {
	t.Parallel()

	_, err := NewDomainTool(Binding{Domain: contractx.DomainSales, Tool: "sales_genie", SpaceID: "  "}, &fakeAsker{})
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestDomainToolDelegatesWithBoundSpace(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{answer: "North: $1.2M, South: $0.8M"}
	dt, err := NewDomainTool(Binding{Domain: contractx.DomainSales, Tool: "sales_genie", SpaceID: "S1"}, asker)
	if err != nil {
		t.Fatalf("NewDomainTool() error = %v", err)
	}

	out, err := dt.InvokableRun(context.Background(), `{"question":"What is total revenue by region?"}`)
	if err != nil {
		t.Fatalf("InvokableRun() error = %v", err)
	}
	if out != "North: $1.2M, South: $0.8M" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(asker.calls) != 1 || asker.calls[0].spaceID != "S1" {
		t.Fatalf("unexpected calls %#v", asker.calls)
	}

	info, err := dt.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Name != "sales_genie" {
		t.Fatalf("unexpected tool name %s", info.Name)
	}
}

func TestDomainToolFailuresBecomeResultText(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{err: errors.New("genie: 403 Forbidden")}
	dt, err := NewDomainTool(Binding{Domain: contractx.DomainCustomer, Tool: "customer_genie", SpaceID: "C1"}, asker)
	if err != nil {
		t.Fatalf("NewDomainTool() error = %v", err)
	}

	out, err := dt.InvokableRun(context.Background(), `{"question":"churn by segment"}`)
	if err != nil {
		t.Fatalf("InvokableRun() must not fail, got %v", err)
	}
	if out != "error: genie: 403 Forbidden" {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = dt.InvokableRun(context.Background(), `{"question":"   "}`)
	if err != nil {
		t.Fatalf("InvokableRun() must not fail, got %v", err)
	}
	if !strings.HasPrefix(out, "error: ") {
		t.Fatalf("expected error text for blank question, got %q", out)
	}
	if len(asker.calls) != 1 {
		t.Fatalf("blank question must not reach the backend, calls=%d", len(asker.calls))
	}
}
