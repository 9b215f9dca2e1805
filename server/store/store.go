package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"negotiation-bench/server/engine"
)

//go:embed schema.sql
var schema embed.FS

// Record is one finished game as persisted.
type Record struct {
	ID         int64
	Source     string // "batch" or "web"
	Batch      string // output directory or web session id
	Index      int
	P0Model    string
	P1Model    string
	Outcome    engine.Outcome
	Disconnect bool
	Bonus      float64
}

// Sink receives finished games.
type Sink interface {
	SaveOutcome(ctx context.Context, r Record) error
}

// Multi fans a record out to several sinks, stopping at the first error.
type Multi []Sink

func (m Multi) SaveOutcome(ctx context.Context, r Record) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.SaveOutcome(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// gameColumns is shared by both backends, in insert order.
const gameColumns = `source, batch, game_index, objective, p0_model, p1_model,
        counts, p0_values, p1_values, p0_allocation, p1_allocation,
        p0_score, p1_score, message_count, token_count,
        is_valid_deal, abort, status, disconnect, bonus`

func recordArgs(r Record) ([]any, error) {
	o := r.Outcome
	maps := []any{o.Counts, o.P0Values, o.P1Values, o.P0Allocation, o.P1Allocation}
	enc := make([]any, len(maps))
	for i, m := range maps {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		enc[i] = json.RawMessage(b)
	}
	args := []any{r.Source, r.Batch, r.Index, string(o.Objective), r.P0Model, r.P1Model}
	args = append(args, enc...)
	return append(args,
		o.P0Score, o.P1Score, o.MessageCount, o.TokenCount,
		o.ValidDeal, o.Abort, string(o.Status), r.Disconnect, r.Bonus), nil
}

// scanner is satisfied by pgx.Rows and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r                Record
		obj, status      string
		counts, v0, v1   []byte
		a0, a1           []byte
		p0Model, p1Model *string
	)
	err := row.Scan(&r.ID, &r.Source, &r.Batch, &r.Index, &obj, &p0Model, &p1Model,
		&counts, &v0, &v1, &a0, &a1,
		&r.Outcome.P0Score, &r.Outcome.P1Score, &r.Outcome.MessageCount, &r.Outcome.TokenCount,
		&r.Outcome.ValidDeal, &r.Outcome.Abort, &status, &r.Disconnect, &r.Bonus)
	if err != nil {
		return Record{}, err
	}
	r.Outcome.Objective = engine.Objective(obj)
	r.Outcome.Status = engine.Status(status)
	if p0Model != nil {
		r.P0Model = *p0Model
	}
	if p1Model != nil {
		r.P1Model = *p1Model
	}
	for _, f := range []struct {
		raw  []byte
		dest any
	}{
		{counts, &r.Outcome.Counts},
		{v0, &r.Outcome.P0Values},
		{v1, &r.Outcome.P1Values},
		{a0, &r.Outcome.P0Allocation},
		{a1, &r.Outcome.P1Allocation},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return Record{}, fmt.Errorf("game %d: %w", r.ID, err)
		}
	}
	return r, nil
}

func placeholders(n int, cast func(i int) string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = cast(i)
	}
	return strings.Join(parts, ",")
}

/* -----------------------------
   Postgres
------------------------------*/

// SaveOutcome inserts a finished game.
func (db *DB) SaveOutcome(ctx context.Context, r Record) error {
	_, err := db.InsertGame(ctx, r)
	return err
}

// InsertGame inserts a finished game and returns its id.
func (db *DB) InsertGame(ctx context.Context, r Record) (int64, error) {
	args, err := recordArgs(r)
	if err != nil {
		return 0, err
	}
	vals := placeholders(len(args), func(i int) string {
		if i >= 6 && i <= 10 {
			return fmt.Sprintf("$%d::jsonb", i+1)
		}
		return fmt.Sprintf("$%d", i+1)
	})
	var id int64
	err = db.QueryRow(ctx, `INSERT INTO games(`+gameColumns+`) VALUES (`+vals+`) RETURNING id`, args...).Scan(&id)
	return id, err
}

// RecentOutcomes returns up to limit games, newest first.
func (db *DB) RecentOutcomes(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
		SELECT id, `+gameColumns+`
		  FROM games
		 ORDER BY id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetOrInitRating ensures a model_ratings row exists and fetches it.
func (db *DB) GetOrInitRating(ctx context.Context, model string, start float64) (elo float64, games int, err error) {
	if _, e := db.Exec(ctx, `INSERT INTO model_ratings(model, elo) VALUES ($1,$2) ON CONFLICT (model) DO NOTHING`, model, start); e != nil {
		return 0, 0, e
	}
	err = db.QueryRow(ctx, `SELECT elo, games FROM model_ratings WHERE model = $1`, model).Scan(&elo, &games)
	return
}

// UpdateRating persists a model's rating and increments its game counter.
func (db *DB) UpdateRating(ctx context.Context, model string, elo float64, gamesInc int) error {
	tag, err := db.Exec(ctx, `
		UPDATE model_ratings
		   SET elo = $2,
		       games = games + $3,
		       updated_at = now()
		 WHERE model = $1
	`, model, elo, gamesInc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rating for %q: %w", model, pgx.ErrNoRows)
	}
	return nil
}

type ModelRating struct {
	Model string  `json:"model"`
	Elo   float64 `json:"elo"`
	Games int     `json:"games"`
}

// Ratings lists every rated model, best first.
func (db *DB) Ratings(ctx context.Context) ([]ModelRating, error) {
	rows, err := db.Query(ctx, `SELECT model, elo, games FROM model_ratings ORDER BY elo DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModelRating
	for rows.Next() {
		var m ModelRating
		if err := rows.Scan(&m.Model, &m.Elo, &m.Games); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
