package tool

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/domains.yaml
var domainsYAML []byte

// Config carries the analytics space id per domain.
type Config struct {
	SalesSpaceID     string `envconfig:"SALES_SPACE_ID"`
	CustomerSpaceID  string `envconfig:"CUSTOMER_SPACE_ID"`
	InventorySpaceID string `envconfig:"INVENTORY_SPACE_ID"`
}

func (c Config) SpaceID(domain contractx.Domain) string {
	switch domain {
	case contractx.DomainSales:
		return strings.TrimSpace(c.SalesSpaceID)
	case contractx.DomainCustomer:
		return strings.TrimSpace(c.CustomerSpaceID)
	case contractx.DomainInventory:
		return strings.TrimSpace(c.InventorySpaceID)
	default:
		return ""
	}
}

type CatalogEntry struct {
	Domain      contractx.Domain `yaml:"domain"`
	Tool        string           `yaml:"tool"`
	Description string           `yaml:"description"`
	Required    bool             `yaml:"required"`
}

type Catalog struct {
	Domains []CatalogEntry `yaml:"domains"`
}

// LoadCatalog parses the embedded domain catalog.
func LoadCatalog() (Catalog, error) {
	return ParseCatalog(domainsYAML)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("%w: parse domain catalog: %v", contractx.ErrConfiguration, err)
	}

	seen := make(map[string]struct{}, len(c.Domains))
	for i, d := range c.Domains {
		d.Tool = strings.TrimSpace(d.Tool)
		d.Description = strings.TrimSpace(d.Description)
		if d.Domain == "" || d.Tool == "" {
			return Catalog{}, fmt.Errorf("%w: catalog entry %d needs domain and tool", contractx.ErrConfiguration, i)
		}
		if _, dup := seen[d.Tool]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate tool %q in catalog", contractx.ErrConfiguration, d.Tool)
		}
		seen[d.Tool] = struct{}{}
		c.Domains[i] = d
	}
	return c, nil
}

// Bindings resolves space ids for every catalog domain. A required domain
// without a space id is a configuration error; an optional one is skipped.
func (c Catalog) Bindings(cfg Config) ([]Binding, error) {
	out := make([]Binding, 0, len(c.Domains))
	for _, d := range c.Domains {
		spaceID := cfg.SpaceID(d.Domain)
		if spaceID == "" {
			if d.Required {
				return nil, fmt.Errorf("%w: space id for domain=%s is not set", contractx.ErrConfiguration, d.Domain)
			}
			continue
		}
		out = append(out, Binding{
			Domain:      d.Domain,
			Tool:        d.Tool,
			SpaceID:     spaceID,
			Description: d.Description,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no analytics domain is configured", contractx.ErrConfiguration)
	}
	return out, nil
}

// BuildDomainTools creates one DomainTool per configured domain.
func BuildDomainTools(cfg Config, asker Asker) ([]*DomainTool, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	bindings, err := catalog.Bindings(cfg)
	if err != nil {
		return nil, err
	}

	tools := make([]*DomainTool, 0, len(bindings))
	for _, b := range bindings {
		t, err := NewDomainTool(b, asker)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}
