package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"negotiation-bench/server/batch"
	"negotiation-bench/server/engine"
	"negotiation-bench/server/session"
	"negotiation-bench/server/store"
)

// outcomeReader is implemented by both store backends.
type outcomeReader interface {
	RecentOutcomes(ctx context.Context, limit int) ([]store.Record, error)
}

// Deps are what the HTTP routes read from. Any of them may be nil.
type Deps struct {
	DB       *store.DB
	Games    outcomeReader
	Sessions *session.Registry
	WS       http.Handler
}

func Router(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Health
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{"ok": true}
		if d.Sessions != nil {
			out["sessions"] = d.Sessions.Len()
		}
		if d.DB != nil {
			ctx, cancel := withTimeout(r.Context(), 2*time.Second)
			defer cancel()
			out["db"] = d.DB.Ping(ctx) == nil
		}
		writeJSON(w, out)
	})

	// Most recent finished games, newest first
	r.Get("/api/games", func(w http.ResponseWriter, r *http.Request) {
		if d.Games == nil {
			http.Error(w, "no outcome store configured", http.StatusServiceUnavailable)
			return
		}
		limit := atoiDef(r.URL.Query().Get("limit"), 50)
		if limit <= 0 || limit > 500 {
			http.Error(w, "limit must be in 1..500", http.StatusBadRequest)
			return
		}
		ctx, cancel := withTimeout(r.Context(), 5*time.Second)
		defer cancel()
		recs, err := d.Games.RecentOutcomes(ctx, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		rows := make([]gameRow, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, toRow(rec))
		}
		writeJSON(w, map[string]any{"rows": rows})
	})

	// Elo per model from cross-play runs
	r.Get("/api/ratings", func(w http.ResponseWriter, r *http.Request) {
		if d.DB == nil {
			http.Error(w, "ratings need DATABASE_URL", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := withTimeout(r.Context(), 5*time.Second)
		defer cancel()
		ratings, err := d.DB.Ratings(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if ratings == nil {
			ratings = []store.ModelRating{}
		}
		writeJSON(w, map[string]any{"rows": ratings})
	})

	if d.WS != nil {
		r.Handle("/ws", d.WS)
	}
	return r
}

type gameRow struct {
	ID         int64          `json:"id"`
	Source     string         `json:"source"`
	Batch      string         `json:"batch"`
	Index      int            `json:"index"`
	P0Model    string         `json:"p0_model"`
	P1Model    string         `json:"p1_model"`
	Outcome    engine.Outcome `json:"outcome"`
	Disconnect bool           `json:"disconnect"`
	Bonus      float64        `json:"bonus"`
	// ResultPath points at the batch result file; empty for web games.
	ResultPath string `json:"result_path,omitempty"`
}

func toRow(r store.Record) gameRow {
	row := gameRow{
		ID:         r.ID,
		Source:     r.Source,
		Batch:      r.Batch,
		Index:      r.Index,
		P0Model:    r.P0Model,
		P1Model:    r.P1Model,
		Outcome:    r.Outcome,
		Disconnect: r.Disconnect,
		Bonus:      r.Bonus,
	}
	if r.Source == "batch" {
		row.ResultPath = batch.Dir(r.Batch).ResultPath(r.Index)
	}
	return row
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
