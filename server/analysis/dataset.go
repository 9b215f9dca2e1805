package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"negotiation-bench/server/agent"
	"negotiation-bench/server/batch"
	"negotiation-bench/server/engine"
)

// Filter picks which player logs become training examples.
type Filter string

const (
	FilterAboveAvg Filter = "above_avg"
	FilterNonzero  Filter = "nonzero"
	FilterAll      Filter = "all"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAboveAvg, nil
	case FilterAboveAvg, FilterNonzero, FilterAll:
		return f, nil
	}
	return "", fmt.Errorf("invalid filter %q", s)
}

// Selection is the game indices kept per seat.
type Selection [2][]int

func (s Selection) Len() int { return len(s[0]) + len(s[1]) }

// Select applies f to a batch. A player's log is kept when its score beats the
// cutoff (the pooled mean, 0, or everything). In the zero-sum game a valid deal
// that left both players at 0 is kept for both.
func Select(results []batch.Result, f Filter) (Selection, error) {
	var all []int
	for _, r := range results {
		all = append(all, r.P0Score, r.P1Score)
	}
	var cutoff float64
	switch f {
	case FilterAboveAvg:
		cutoff = Mean(all)
	case FilterNonzero:
		cutoff = 0
	case FilterAll:
		cutoff = -100
	default:
		return Selection{}, fmt.Errorf("invalid filter %q", f)
	}

	var sel Selection
	for i, r := range results {
		include := r.Objective == engine.Competitive && r.ValidDeal && r.P0Score == 0 && r.P1Score == 0
		for _, seat := range []engine.Seat{engine.SeatA, engine.SeatB} {
			if float64(r.Scores()[seat]) > cutoff || include {
				sel[seat] = append(sel[seat], i)
			}
		}
	}
	return sel, nil
}

type example struct {
	Messages agent.History `json:"messages"`
}

// Concatenate appends the selected player logs of dir to out as
// {"messages": [...]} lines. A ".zst" suffix compresses the file, which is
// then rewritten rather than appended. It returns the number of examples.
func Concatenate(dir batch.Dir, f Filter, out string) (int, error) {
	results, err := dir.Results()
	if err != nil {
		return 0, err
	}
	sel, err := Select(results, f)
	if err != nil {
		return 0, err
	}
	log.Info().Str("dir", string(dir)).Str("filter", string(f)).Int("examples", sel.Len()).Msg("building fine-tuning set")

	var (
		file *os.File
		w    io.Writer
		enc  *zstd.Encoder
	)
	if strings.HasSuffix(out, ".zst") {
		file, err = os.Create(out)
		if err != nil {
			return 0, err
		}
		enc, err = zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			file.Close()
			return 0, err
		}
		w = enc
	} else {
		file, err = os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return 0, err
		}
		w = file
	}
	defer file.Close()

	je := json.NewEncoder(w)
	n := 0
	for _, seat := range []engine.Seat{engine.SeatA, engine.SeatB} {
		for _, i := range sel[seat] {
			h, err := dir.ReadLog(i, seat)
			if err != nil {
				return n, err
			}
			if err := je.Encode(example{Messages: h}); err != nil {
				return n, err
			}
			n++
		}
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return n, err
		}
	}
	return n, file.Close()
}
