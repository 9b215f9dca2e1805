package analysis

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"negotiation-bench/server/batch"
	"negotiation-bench/server/engine"
)

// Manifest lists the iterations of one experiment, in order.
//
//	objective: self
//	iterations:
//	  - path: data/self/gpt-4
//	  - path: data/self/ft-iter1
//	    id: iter-1
type Manifest struct {
	Objective  string      `yaml:"objective"`
	Iterations []Iteration `yaml:"iterations"`
}

type Iteration struct {
	Path string `yaml:"path"`
	// ID defaults to the last path element.
	ID string `yaml:"id"`
}

func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(m.Iterations) == 0 {
		return Manifest{}, fmt.Errorf("%s: no iterations", path)
	}
	// relative iteration paths resolve against the manifest's directory
	base := filepath.Dir(path)
	for i := range m.Iterations {
		it := &m.Iterations[i]
		if it.ID == "" {
			it.ID = filepath.Base(it.Path)
		}
		if !filepath.IsAbs(it.Path) {
			it.Path = filepath.Join(base, it.Path)
		}
	}
	return m, nil
}

// CSVHeader is the column order of the iteration table.
var CSVHeader = []string{
	"model id",
	"total mean",
	"total median",
	"total avg length in tokens",
	"total avg length in msgs",
	"agreement proportion",
	"pareto-optimal proportion",
	"filtered mean",
	"filtered median",
	"filtered length in tokens",
	"proportion filtered",
	"filtered length in msgs",
}

func round4(x float64) string {
	return strconv.FormatFloat(math.Round(x*1e4)/1e4, 'f', -1, 64)
}

// Row renders one report under CSVHeader.
func Row(id string, r Report) []string {
	return []string{
		id,
		round4(r.Total.Mean),
		strconv.FormatFloat(r.Total.Median, 'f', -1, 64),
		round4(r.Total.LengthTokens),
		round4(r.Total.LengthMsgs),
		round4(r.Agreement.ProportionAgreement),
		round4(r.Agreement.ProportionPareto),
		round4(r.AboveAvg.Mean),
		round4(r.AboveAvg.Median),
		round4(r.AboveAvg.LengthTokens),
		round4(r.AboveAvg.ProportionAboveAvg),
		round4(r.AboveAvg.LengthMsgs),
	}
}

// WriteCSV analyzes every iteration of m and writes one row each to path.
func WriteCSV(m Manifest, path string, opts Options) error {
	if m.Objective != "" {
		obj, err := engine.ParseObjective(m.Objective)
		if err != nil {
			return err
		}
		opts.Objective = obj
	}
	rows := make([][]string, 0, len(m.Iterations))
	for _, it := range m.Iterations {
		rep, err := AnalyzeDir(batch.Dir(it.Path), opts)
		if err != nil {
			return fmt.Errorf("iteration %s: %w", it.ID, err)
		}
		rows = append(rows, Row(it.ID, rep))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return f.Close()
}
