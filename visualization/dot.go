package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/fsm"
)

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowEvents       bool
	ShowGuards       bool
	ShowDescriptions bool
	RankDirection    string // "TB", "LR", "BT", "RL"
	NodeShape        string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowEvents:       true,
		ShowGuards:       true,
		ShowDescriptions: false,
		RankDirection:    "LR",
		NodeShape:        "box",
	}
}

// Generator renders a graph as DOT
type Generator interface {
	Generate() (string, error)
}

// DOTGenerator generates Graphviz DOT format representations of a phase
// cycle state machine
type DOTGenerator struct {
	definition *fsm.Definition
	options    DOTOptions
}

// NewDOTGenerator creates a new DOT generator for the given cycle definition
func NewDOTGenerator(definition *fsm.Definition, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &DOTGenerator{
		definition: definition,
		options:    opts,
	}
}

// Generate creates a DOT representation of the state machine
func (g *DOTGenerator) Generate() (string, error) {
	if g.definition == nil {
		return "", fmt.Errorf("no definition to render")
	}

	var dot strings.Builder

	dot.WriteString("digraph Cycle {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString(fmt.Sprintf("  node [shape=%s];\n", g.options.NodeShape))
	dot.WriteString("  edge [fontsize=10];\n\n")

	dot.WriteString("  // States\n")
	for _, state := range g.definition.States() {
		g.generateStateNode(&dot, state, state == g.definition.Initial())
	}

	dot.WriteString("\n  // Transitions\n")
	for _, state := range g.definition.States() {
		for _, t := range g.definition.Transitions(state) {
			g.generateTransition(&dot, t)
		}
	}

	dot.WriteString("}\n")
	return dot.String(), nil
}

func (g *DOTGenerator) generateStateNode(dot *strings.Builder, state string, isInitial bool) {
	fillColor := "lightblue"
	label := state
	if isInitial {
		fillColor = "lightgreen"
		label += "\\n(initial)"
	}

	dot.WriteString(fmt.Sprintf("  \"%s\" [style=\"filled\" fillcolor=%s label=\"%s\"];\n",
		state, fillColor, label))
}

func (g *DOTGenerator) generateTransition(dot *strings.Builder, t fsm.Transition) {
	var parts []string
	if g.options.ShowEvents {
		parts = append(parts, t.Event)
	}
	if g.options.ShowGuards && t.Guard != nil {
		parts = append(parts, "[guarded]")
	}
	if g.options.ShowDescriptions && t.Description != "" {
		parts = append(parts, "("+t.Description+")")
	}

	if len(parts) == 0 {
		dot.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", t.Source, t.Target))
		return
	}
	dot.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s\"];\n",
		t.Source, t.Target, strings.Join(parts, "\\n")))
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	return writeDOT(g, filename)
}

// GenerateSVG creates an SVG representation via the Graphviz dot command
func (g *DOTGenerator) GenerateSVG() (string, error) {
	return renderSVG(g)
}

// RuleGraphGenerator renders a rule table as an undirected graph: one node
// per sensor and an edge between every pair that may be green together.
// Edges reachable through a default set are solid, the rest dashed.
type RuleGraphGenerator struct {
	rules   *junction.RuleTable
	options DOTOptions
}

// NewRuleGraphGenerator creates a generator for rules
func NewRuleGraphGenerator(rules *junction.RuleTable, options ...DOTOptions) *RuleGraphGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	return &RuleGraphGenerator{rules: rules, options: opts}
}

// Generate creates the DOT representation of the compatibility graph
func (g *RuleGraphGenerator) Generate() (string, error) {
	if g.rules == nil {
		return "", fmt.Errorf("no rule table to render")
	}

	var dot strings.Builder

	dot.WriteString("graph Compatibility {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString("  node [shape=ellipse style=\"filled\"];\n\n")

	sensors := g.rules.Sensors()

	dot.WriteString("  // Sensors\n")
	for _, id := range sensors {
		fillColor := "lightblue"
		if g.rules.IsPedestrian(id) {
			fillColor = "lightyellow"
		}
		dot.WriteString(fmt.Sprintf("  \"%s\" [fillcolor=%s];\n", id, fillColor))
	}

	dot.WriteString("\n  // Compatible pairs\n")
	for i, a := range sensors {
		for _, b := range sensors[i+1:] {
			if !g.rules.Compatible(a, b) {
				continue
			}
			style := "dashed"
			if g.inDefault(a, b) || g.inDefault(b, a) {
				style = "solid"
			}
			dot.WriteString(fmt.Sprintf("  \"%s\" -- \"%s\" [style=%s];\n", a, b, style))
		}
	}

	dot.WriteString("}\n")
	return dot.String(), nil
}

func (g *RuleGraphGenerator) inDefault(primary, other junction.SensorID) bool {
	rule, ok := g.rules.Rule(primary)
	return ok && slices.Contains(rule.Default, other)
}

// GenerateToFile writes the DOT representation to a file
func (g *RuleGraphGenerator) GenerateToFile(filename string) error {
	return writeDOT(g, filename)
}

// GenerateSVG creates an SVG representation via the Graphviz dot command
func (g *RuleGraphGenerator) GenerateSVG() (string, error) {
	return renderSVG(g)
}

func writeDOT(g Generator, filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(content), 0644)
}

func renderSVG(g Generator) (string, error) {
	dotContent, err := g.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}
	return out.String(), nil
}
