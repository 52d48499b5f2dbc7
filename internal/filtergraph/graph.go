package filtergraph

import (
	"fmt"
	"regexp"
	"strings"
)

var reLabel = regexp.MustCompile(`^[A-Za-z0-9_:]+$`)

// Graph is a complex filter graph: labelled chains separated by semicolons.
type Graph struct {
	segments []segment
}

type segment struct {
	inputs  []string
	chain   Chain
	outputs []string
}

// Add appends a chain reading from inputs and writing to outputs. Labels are
// written without brackets, e.g. "0:v" or "vout".
func (g *Graph) Add(inputs []string, chain Chain, outputs ...string) *Graph {
	g.segments = append(g.segments, segment{inputs: inputs, chain: chain, outputs: outputs})
	return g
}

// Len returns the number of chains in the graph.
func (g *Graph) Len() int {
	return len(g.segments)
}

// String serialises the graph. It fails on empty chains or malformed labels.
func (g *Graph) String() (string, error) {
	parts := make([]string, 0, len(g.segments))
	for i, s := range g.segments {
		if len(s.chain) == 0 {
			return "", fmt.Errorf("filter graph segment %d is empty", i)
		}
		var b strings.Builder
		for _, in := range s.inputs {
			if !reLabel.MatchString(in) {
				return "", fmt.Errorf("invalid input label %q", in)
			}
			b.WriteString("[" + in + "]")
		}
		b.WriteString(s.chain.String())
		for _, out := range s.outputs {
			if !reLabel.MatchString(out) {
				return "", fmt.Errorf("invalid output label %q", out)
			}
			b.WriteString("[" + out + "]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ";"), nil
}
