package batch

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/exp/rand"

	"negotiation-bench/server/engine"
)

//go:embed data/contexts.txt
var builtinContexts []byte

// Scenario is one game setup: shared counts and both private value profiles.
type Scenario struct {
	Counts engine.Counts
	Values [2]engine.Values
}

// Config turns the scenario into a game configuration.
func (s Scenario) Config(obj engine.Objective, maxTurns int, first engine.Seat) engine.Config {
	return engine.Config{Counts: s.Counts, Values: s.Values, Objective: obj, MaxTurns: maxTurns, First: first}
}

// LoadScenarios reads a contexts file. Scenario i is built from lines 2i and 2i+1;
// both lines must agree on the counts. An empty path loads the built-in set.
func LoadScenarios(path string) ([]Scenario, error) {
	raw := builtinContexts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return ParseScenarios(raw)
}

func ParseScenarios(raw []byte) ([]Scenario, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 || len(lines)%2 != 0 {
		return nil, fmt.Errorf("contexts: want an even, non-zero number of lines, got %d", len(lines))
	}
	out := make([]Scenario, 0, len(lines)/2)
	for i := 0; i < len(lines); i += 2 {
		ca, va, err := engine.ParseContext(lines[i])
		if err != nil {
			return nil, err
		}
		cb, vb, err := engine.ParseContext(lines[i+1])
		if err != nil {
			return nil, err
		}
		for _, it := range engine.Items {
			if ca[it] != cb[it] {
				return nil, fmt.Errorf("contexts: lines %d and %d disagree on %s count", i+1, i+2, it)
			}
		}
		out = append(out, Scenario{Counts: ca, Values: [2]engine.Values{va, vb}})
	}
	return out, nil
}

// Sample draws n scenarios uniformly with replacement.
func Sample(r *rand.Rand, scenarios []Scenario, n int) []Scenario {
	out := make([]Scenario, n)
	for i := range out {
		out[i] = scenarios[r.Intn(len(scenarios))]
	}
	return out
}
