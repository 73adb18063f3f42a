package porttype

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

//go:embed catalog.hcl
var defaultCatalogSource []byte

// Archetype is a declared node shape whose output types form one
// compatibility group.
type Archetype struct {
	Name        string
	InputTypes  []string
	OutputTypes []string
}

// Catalog holds the archetypes and the node template palette.
type Catalog struct {
	Archetypes []Archetype
	templates  []*graph.Node
}

type catalogFile struct {
	Archetypes []archetypeBlock `hcl:"archetype,block"`
	Templates  []templateBlock  `hcl:"template,block"`
}

type archetypeBlock struct {
	Name    string   `hcl:"name,label"`
	Inputs  []string `hcl:"inputs"`
	Outputs []string `hcl:"outputs"`
}

type templateBlock struct {
	Name           string   `hcl:"name,label"`
	Icon           string   `hcl:"icon"`
	Inputs         []string `hcl:"inputs,optional"`
	Outputs        []string `hcl:"outputs,optional"`
	Trigger        string   `hcl:"trigger,optional"`
	Transform      string   `hcl:"transform,optional"`
	FormatterKey   string   `hcl:"formatter_key,optional"`
	APIEndpoint    string   `hcl:"api_endpoint,optional"`
	HasTextInput   bool     `hcl:"has_text_input,optional"`
	HasKeyInput    bool     `hcl:"has_key_input,optional"`
	HasSubkeyInput bool     `hcl:"has_subkey_input,optional"`
	HasTextOutput  bool     `hcl:"has_text_output,optional"`
	HasChartOutput bool     `hcl:"has_chart_output,optional"`
}

// CatalogVars are the variables visible to catalog expressions.
type CatalogVars struct {
	SolverBaseURL string
}

func (v CatalogVars) evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"solver_base_url": cty.StringVal(strings.TrimRight(v.SolverBaseURL, "/")),
		},
	}
}

// DefaultCatalog loads the built-in catalog.
func DefaultCatalog(vars CatalogVars) (*Catalog, error) {
	return LoadCatalog(defaultCatalogSource, "catalog.hcl", vars)
}

// MustDefaultCatalog is DefaultCatalog for package-level setup in tests and
// tools; the embedded source is fixed at build time.
func MustDefaultCatalog(vars CatalogVars) *Catalog {
	c, err := DefaultCatalog(vars)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog parses HCL catalog source.
func LoadCatalog(src []byte, filename string, vars CatalogVars) (*Catalog, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse catalog %s: %s", filename, diags.Error())
	}

	var parsed catalogFile
	diags = gohcl.DecodeBody(file.Body, vars.evalContext(), &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode catalog %s: %s", filename, diags.Error())
	}

	c := &Catalog{
		Archetypes: make([]Archetype, 0, len(parsed.Archetypes)),
		templates:  make([]*graph.Node, 0, len(parsed.Templates)),
	}
	for _, a := range parsed.Archetypes {
		c.Archetypes = append(c.Archetypes, Archetype{
			Name:        a.Name,
			InputTypes:  normalizeAll(a.Inputs),
			OutputTypes: normalizeAll(a.Outputs),
		})
	}
	seen := make(map[string]bool, len(parsed.Templates))
	for _, t := range parsed.Templates {
		if seen[t.Name] {
			return nil, fmt.Errorf("catalog %s: duplicate template %q", filename, t.Name)
		}
		seen[t.Name] = true
		n, err := t.node()
		if err != nil {
			return nil, fmt.Errorf("catalog %s: template %q: %w", filename, t.Name, err)
		}
		c.templates = append(c.templates, n)
	}
	return c, nil
}

func (t templateBlock) node() (*graph.Node, error) {
	n := graph.NewNode("", t.Name)
	n.IconType = graph.IconType(t.Icon)
	n.HasTextInput = t.HasTextInput
	n.HasKeyInput = t.HasKeyInput
	n.HasSubkeyInput = t.HasSubkeyInput
	n.HasTextOutput = t.HasTextOutput
	n.HasChartOutput = t.HasChartOutput
	if t.Inputs != nil {
		n.InputTypes = t.Inputs
	}
	if t.Outputs != nil {
		n.OutputTypes = t.Outputs
	}
	n.TriggerAction = graph.TriggerAction(t.Trigger)
	n.TransformType = graph.TransformType(t.Transform)
	n.FormatterKey = t.FormatterKey
	n.APIEndpoint = t.APIEndpoint
	n.OutputData = value.Text("")

	if !n.TriggerAction.Valid() {
		return nil, fmt.Errorf("%w: %q", graph.ErrInvalidTrigger, t.Trigger)
	}
	if !n.TransformType.Valid() {
		return nil, fmt.Errorf("%w: %q", graph.ErrInvalidTransform, t.Transform)
	}
	return n, nil
}

// Template returns a copy of the named template. The copy has no id; use
// graph.Instantiate to place it.
func (c *Catalog) Template(name string) (*graph.Node, error) {
	for _, t := range c.templates {
		if t.Name == name {
			return t.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", graph.ErrTemplateNotFound, name)
}

// Templates returns copies of every template in declaration order.
func (c *Catalog) Templates() []*graph.Node {
	out := make([]*graph.Node, len(c.templates))
	for i, t := range c.templates {
		out[i] = t.Clone()
	}
	return out
}

// archetypeGroup returns the output types of the first archetype advertising
// source, scanning in declaration order.
func (c *Catalog) archetypeGroup(source string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	for _, a := range c.Archetypes {
		for _, out := range a.OutputTypes {
			if out == source {
				return a.OutputTypes, true
			}
		}
	}
	return nil, false
}

func normalizeAll(types []string) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = Normalize(t)
	}
	return out
}
