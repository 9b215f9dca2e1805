package batch

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"negotiation-bench/server/agent"
	"negotiation-bench/server/engine"
	"negotiation-bench/server/session"
)

//go:embed data/result.schema.json
var resultSchemaJSON string

var resultSchema = jsonschema.MustCompileString("result.schema.json", resultSchemaJSON)

// Result is the per-game summary written to results/NNN.json.
type Result struct {
	engine.Outcome
	P0Model string `json:"p0_model,omitempty"`
	P1Model string `json:"p1_model,omitempty"`
}

// Dir is a batch output directory:
//
//	results/NNN.json          game summary
//	p0_scores, p1_scores      one final score per line, in game order
//	json_logs/NNN_p{0,1}.json clean per-player dialogue
//	text_logs/NNN_full.txt    shared transcript
//	text_logs/NNN_p{0,1}.txt  raw player outputs and validator errors
type Dir string

func Index(i int) string { return fmt.Sprintf("%03d", i) }

func (d Dir) path(parts ...string) string {
	return filepath.Join(append([]string{string(d)}, parts...)...)
}

func (d Dir) ResultPath(i int) string { return d.path("results", Index(i)+".json") }

func (d Dir) LogPath(i int, seat engine.Seat) string {
	return d.path("json_logs", fmt.Sprintf("%s_p%d.json", Index(i), seat))
}

func (d Dir) ScoresPath(seat engine.Seat) string { return d.path(fmt.Sprintf("p%d_scores", seat)) }

// Prepare creates the log and result subdirectories.
func (d Dir) Prepare() error {
	for _, sub := range []string{"json_logs", "text_logs", "results"} {
		if err := os.MkdirAll(d.path(sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// NextIndex is the first game index with no result on disk.
func (d Dir) NextIndex() (int, error) {
	idx, err := d.indices()
	if err != nil {
		return 0, err
	}
	if len(idx) == 0 {
		return 0, nil
	}
	return idx[len(idx)-1] + 1, nil
}

// WriteGame persists a finished match under index i. The result file is
// created exclusively, so an existing game is never overwritten.
func (d Dir) WriteGame(i int, m *session.Match, out engine.Outcome) error {
	res := Result{Outcome: out, P0Model: m.Players[engine.SeatA].Name, P1Model: m.Players[engine.SeatB].Name}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := writeExclusive(d.ResultPath(i), b); err != nil {
		return err
	}

	for _, seat := range []engine.Seat{engine.SeatA, engine.SeatB} {
		p := m.Players[seat]
		logJSON, err := json.Marshal(p.Log)
		if err != nil {
			return err
		}
		if err := os.WriteFile(d.LogPath(i, seat), logJSON, 0o644); err != nil {
			return err
		}
		var tb strings.Builder
		fmt.Fprintf(&tb, "%s\n\n", valueLine(m.Config.Values[seat], false, 0))
		for _, line := range p.Trace {
			tb.WriteString(line + "\n")
		}
		if err := os.WriteFile(d.path("text_logs", fmt.Sprintf("%s_p%d.txt", Index(i), seat)), []byte(tb.String()), 0o644); err != nil {
			return err
		}
		if err := appendLine(d.ScoresPath(seat), fmt.Sprintf("%d \n", out.Scores()[seat])); err != nil {
			return err
		}
	}
	return os.WriteFile(d.path("text_logs", Index(i)+"_full.txt"), []byte(fullTranscript(m, out)), 0o644)
}

func fullTranscript(m *session.Match, out engine.Outcome) string {
	var b strings.Builder
	c := m.Config.Counts
	fmt.Fprintf(&b, "Item counts: there are %d books, %d hats, and %d balls.\n", c[engine.Book], c[engine.Hat], c[engine.Ball])
	for _, seat := range []engine.Seat{engine.SeatA, engine.SeatB} {
		b.WriteString(valueLine(m.Config.Values[seat], true, seat) + "\n")
	}
	b.WriteString("\n\n")
	for _, t := range m.Game.Transcript() {
		fmt.Fprintf(&b, "%s: %s\n", t.Seat, t.Text)
	}
	for _, seat := range []engine.Seat{engine.SeatA, engine.SeatB} {
		fmt.Fprintf(&b, "%s FINAL SCORE: %d \n", seat, out.Scores()[seat])
	}
	return b.String()
}

func valueLine(v engine.Values, withSeat bool, seat engine.Seat) string {
	line := fmt.Sprintf("books are worth %d points, hats are worth %d points, and balls are worth %d points.", v[engine.Book], v[engine.Hat], v[engine.Ball])
	if withSeat {
		return fmt.Sprintf("%s values: %s", seat, line)
	}
	return strings.ToUpper(line[:1]) + line[1:]
}

func writeExclusive(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadResult loads and schema-checks results/NNN.json.
func (d Dir) ReadResult(i int) (Result, error) {
	raw, err := os.ReadFile(d.ResultPath(i))
	if err != nil {
		return Result{}, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Result{}, fmt.Errorf("%s: %w", d.ResultPath(i), err)
	}
	if err := resultSchema.Validate(doc); err != nil {
		return Result{}, fmt.Errorf("%s: %w", d.ResultPath(i), err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Results loads every result in index order.
func (d Dir) Results() ([]Result, error) {
	idx, err := d.indices()
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(idx))
	for _, i := range idx {
		r, err := d.ReadResult(i)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (d Dir) indices() ([]int, error) {
	entries, err := os.ReadDir(d.path("results"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var idx []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		idx = append(idx, n)
	}
	sort.Ints(idx)
	return idx, nil
}

// ReadScores reads a seat's score ledger.
func (d Dir) ReadScores(seat engine.Seat) ([]int, error) {
	raw, err := os.ReadFile(d.ScoresPath(seat))
	if err != nil {
		return nil, err
	}
	var out []int
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.ScoresPath(seat), err)
		}
		out = append(out, n)
	}
	return out, sc.Err()
}

// ReadLog loads a player's clean dialogue for game i.
func (d Dir) ReadLog(i int, seat engine.Seat) (agent.History, error) {
	raw, err := os.ReadFile(d.LogPath(i, seat))
	if err != nil {
		return nil, err
	}
	var h agent.History
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%s: %w", d.LogPath(i, seat), err)
	}
	return h, nil
}
