// Package prompt renders the system instructions an agent receives at the
// start of a game.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"negotiation-bench/server/engine"
)

//go:embed templates/*.tmpl
var files embed.FS

var templates = template.Must(template.ParseFS(files, "templates/*.tmpl"))

// Data is what a template sees. Counts and Values are keyed by item name.
type Data struct {
	Counts   map[string]int
	Values   map[string]int
	MaxTurns int
	// Example is a well-formed proposal body for these counts.
	Example string
}

// NewData builds template data for one agent. maxTurns of 0 leaves the turn limit unmentioned.
func NewData(counts engine.Counts, values engine.Values, maxTurns int) Data {
	d := Data{Counts: map[string]int{}, Values: map[string]int{}, MaxTurns: maxTurns}
	half := make(engine.Allocation, len(engine.Items))
	for _, it := range engine.Items {
		d.Counts[string(it)] = counts[it]
		d.Values[string(it)] = values[it]
		half[it] = counts[it] / 2
	}
	d.Example = strings.Trim(half.String(), "()")
	return d
}

// Render returns the system prompt for obj.
func Render(obj engine.Objective, d Data) (string, error) {
	name := string(obj) + ".tmpl"
	if templates.Lookup(name) == nil {
		return "", fmt.Errorf("no prompt for objective %q", obj)
	}
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, d); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// For renders the prompt for one seat of a game configuration.
func For(cfg engine.Config, seat engine.Seat) (string, error) {
	return Render(cfg.Objective, NewData(cfg.Counts, cfg.Values[seat], cfg.MaxTurns))
}
