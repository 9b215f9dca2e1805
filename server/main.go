package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"gopkg.in/yaml.v3"

	"negotiation-bench/server/agent"
	"negotiation-bench/server/analysis"
	"negotiation-bench/server/batch"
	"negotiation-bench/server/engine"
	"negotiation-bench/server/llm"
	"negotiation-bench/server/rating"
	"negotiation-bench/server/session"
	"negotiation-bench/server/store"
	"negotiation-bench/server/web"
)

//
// ===== pretty printing =====
//

var useColor bool

const (
	colReset  = "\033[0m"
	colBold   = "\033[1m"
	colDim    = "\033[2m"
	colGreen  = "\033[32m"
	colRed    = "\033[31m"
	colYellow = "\033[33m"
	colCyan   = "\033[36m"
)

func c(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + colReset
}
func bold(s string) string { return c(colBold, s) }
func dim(s string) string  { return c(colDim, s) }
func good(s string) string { return c(colGreen, s) }
func warn(s string) string { return c(colYellow, s) }
func bad(s string) string  { return c(colRed, s) }
func cyan(s string) string { return c(colCyan, s) }
func modelShort(m string) string {
	m = strings.TrimSpace(m)
	if len(m) <= 28 {
		return m
	}
	return m[:28]
}
func section(title string) { fmt.Printf("\n%s %s %s\n", dim("──"), bold(title), dim("──")) }
func sub(title string)     { fmt.Printf("%s %s\n", dim("•"), bold(title)) }

func statusTag(out engine.Outcome) string {
	switch {
	case out.Abort:
		return bad("abort")
	case out.ValidDeal:
		return good("deal")
	case out.Status == engine.StatusMessageLimit:
		return warn("limit")
	default:
		return warn("no deal")
	}
}

//
// ===== bootstrap =====
//

// Tries: env var file, ./secrets/openai_api_key.txt, ./server/openai_api_key.txt,
// ./openai_api_key.txt and /run/secrets/openai_api_key.
func loadAPIKeyFromSecret() {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return
	}
	var candidates []string
	if p := os.Getenv("OPENAI_API_KEY_FILE"); strings.TrimSpace(p) != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates,
		"./secrets/openai_api_key.txt",
		"./server/openai_api_key.txt",
		"./openai_api_key.txt",
		"/run/secrets/openai_api_key",
	)
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil {
			key := strings.TrimSpace(string(b))
			if key != "" {
				os.Setenv("OPENAI_API_KEY", key)
				return
			}
		}
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(strings.ToLower(getenv("LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if asBool(os.Getenv("DEBUG")) {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000", NoColor: !useColor})
}

type mode int

const (
	modeServe mode = iota
	modeMigrate
	modeSimulate
	modeHuman
	modeAnalyze
	modeCSV
	modeFinetune
)

func parseMode(args []string) (mode, error) {
	m := modeServe
	for _, a := range args {
		switch a {
		case "--migrate":
			m = modeMigrate
		case "--simulate":
			m = modeSimulate
		case "--human":
			m = modeHuman
		case "--analyze":
			m = modeAnalyze
		case "--csv":
			m = modeCSV
		case "--finetune":
			m = modeFinetune
		default:
			return 0, fmt.Errorf("unknown argument %q", a)
		}
	}
	return m, nil
}

func main() {
	_ = godotenv.Load()
	loadAPIKeyFromSecret()

	useColor = (os.Getenv("NO_COLOR") == "") && (strings.TrimSpace(os.Getenv("USE_COLOR")) != "0")
	setupLogging()

	m, err := parseMode(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("usage: server [--migrate|--simulate|--human|--analyze|--csv|--finetune]")
	}
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}

	// model calls need a key; offline modes do not
	switch m {
	case modeServe, modeSimulate, modeHuman, modeFinetune:
		if os.Getenv("OPENROUTER_API_KEY") == "" {
			if err := mustEnv("OPENAI_API_KEY"); err != nil {
				log.Fatal().Err(err).Msg("no API key")
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, m, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed")
	}
}

func run(ctx context.Context, m mode, cfg Config) error {
	switch m {
	case modeAnalyze:
		return runAnalyze(cfg)
	case modeCSV:
		return runCSV(cfg)
	case modeFinetune:
		return runFinetune(ctx, cfg)
	}

	st, err := openStores(ctx, cfg, m == modeMigrate)
	if err != nil {
		return err
	}
	defer st.Close()

	switch m {
	case modeMigrate:
		if st.db == nil {
			return errors.New("--migrate needs DATABASE_URL")
		}
		log.Info().Msg("migrated")
		return nil
	case modeSimulate:
		return runSimulate(ctx, cfg, st)
	case modeHuman:
		return runHuman(ctx, cfg, st)
	}
	return serve(ctx, cfg, st)
}

//
// ===== stores =====
//

type stores struct {
	db   *store.DB
	lite *store.SQLiteIndex
}

// sink fans finished games out to whichever backends are open.
func (s stores) sink() store.Sink {
	var m store.Multi
	if s.db != nil {
		m = append(m, s.db)
	}
	if s.lite != nil {
		m = append(m, s.lite)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// games picks the backend the API reads from, Postgres first.
func (s stores) games() outcomeReader {
	if s.db != nil {
		return s.db
	}
	if s.lite != nil {
		return s.lite
	}
	return nil
}

func (s stores) Close() {
	if s.db != nil {
		s.db.Close(context.Background())
	}
	if s.lite != nil {
		_ = s.lite.Close()
	}
}

// openStores opens the configured backends. A Postgres failure only disables
// Postgres unless migrate was asked for explicitly.
func openStores(ctx context.Context, cfg Config, migrate bool) (stores, error) {
	var st stores
	if cfg.DatabaseURL != "" {
		db, err := store.Open(cfg.DatabaseURL)
		if err == nil {
			err = db.Ping(ctx)
			if err != nil {
				db.Close(ctx)
			}
		}
		switch {
		case err != nil && migrate:
			return st, fmt.Errorf("open database: %w", err)
		case err != nil:
			log.Warn().Err(err).Msg("DB disabled (open failed)")
		default:
			st.db = db
			if migrate || cfg.AutoMigrate {
				if err := store.Migrate(ctx, db); err != nil {
					db.Close(ctx)
					if migrate {
						return stores{}, err
					}
					log.Warn().Err(err).Msg("migrate failed (continuing without DB)")
					st.db = nil
				}
			}
		}
	}
	if cfg.SQLitePath != "" {
		lite, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			st.Close()
			return stores{}, fmt.Errorf("open sqlite: %w", err)
		}
		st.lite = lite
	}
	return st, nil
}

//
// ===== modes =====
//

func newGenerator(cfg Config) batch.NewGenerator {
	return func(model string) agent.Generator {
		g := agent.NewLLM(model, cfg.Temperature)
		g.ReasoningEffort = cfg.Reasoning
		return g
	}
}

func seedOf(cfg Config) uint64 {
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return uint64(time.Now().UnixNano())
}

func policyOf(cfg Config) agent.RetryPolicy {
	p := agent.DefaultRetryPolicy()
	p.MaxAttempts = cfg.MaxRetries
	return p
}

func runSimulate(ctx context.Context, cfg Config, st stores) error {
	scenarios, err := batch.LoadScenarios(cfg.Contexts)
	if err != nil {
		return err
	}
	r := &batch.Runner{
		Dir:       batch.Dir(cfg.OutputDir),
		Objective: cfg.Objective,
		Models:    [2]string{cfg.ModelA, cfg.ModelB},
		NumRuns:   cfg.NumRuns,
		MaxTurns:  cfg.MaxTurns,
		Policy:    policyOf(cfg),
		Scenarios: scenarios,
		Rand:      rand.New(rand.NewSource(seedOf(cfg))),
		Generator: newGenerator(cfg),
		Sink:      st.sink(),
	}
	r.OnGame = func(i int, out engine.Outcome) {
		sub(fmt.Sprintf("Game %s  %s  P0=%s P1=%s  %s", batch.Index(i), statusTag(out),
			cyan(fmt.Sprint(out.P0Score)), cyan(fmt.Sprint(out.P1Score)), dim(fmt.Sprintf("%d msgs", out.MessageCount))))
	}

	kind := "self-play"
	if r.CrossPlay() {
		kind = "cross-play"
		elo := rating.NewElo(cfg.EloStart, cfg.EloK)
		if st.db != nil {
			if elo.A, _, err = st.db.GetOrInitRating(ctx, cfg.ModelA, cfg.EloStart); err != nil {
				return err
			}
			if elo.B, _, err = st.db.GetOrInitRating(ctx, cfg.ModelB, cfg.EloStart); err != nil {
				return err
			}
		}
		r.Elo = &elo
	}

	section(fmt.Sprintf("Negotiation %s (%s)", kind, cfg.Objective))
	fmt.Printf("%s %s vs %s  runs=%d  out=%s\n", dim("models"), bold(modelShort(cfg.ModelA)), bold(modelShort(cfg.ModelB)), cfg.NumRuns, cfg.OutputDir)

	sum, err := r.Run(ctx)
	section("Summary")
	fmt.Printf("games=%d  P0 mean=%.2f  P1 mean=%.2f  elapsed=%s\n", sum.Games, sum.P0Mean, sum.P1Mean, sum.Elapsed.Round(time.Second))
	if r.Elo != nil {
		fmt.Printf("Elo  %s %.1f  %s %.1f\n", modelShort(cfg.ModelA), sum.EloA, modelShort(cfg.ModelB), sum.EloB)
		if st.db != nil && sum.Games > 0 {
			saveRatings(context.Background(), st.db, cfg, r.Elo, sum.Games)
		}
	}
	return err
}

func saveRatings(ctx context.Context, db *store.DB, cfg Config, elo *rating.Elo, games int) {
	for _, p := range []struct {
		model string
		elo   float64
	}{{cfg.ModelA, elo.A}, {cfg.ModelB, elo.B}} {
		err := db.UpdateRating(ctx, p.model, p.elo, games)
		switch {
		case store.IsNotFound(err):
			log.Warn().Str("model", p.model).Msg("rating row vanished; not saved")
		case err != nil:
			log.Warn().Err(err).Str("model", p.model).Msg("rating update failed")
		}
	}
}

// runHuman plays one game from the terminal against OPENAI_MODEL_B.
func runHuman(ctx context.Context, cfg Config, st stores) error {
	scenarios, err := batch.LoadScenarios(cfg.Contexts)
	if err != nil {
		return err
	}
	human := agent.NewHuman(os.Stdin, os.Stdout)
	llmGen := newGenerator(cfg)
	r := &batch.Runner{
		Dir:       batch.Dir(cfg.OutputDir),
		Objective: cfg.Objective,
		Models:    [2]string{web.HumanName, cfg.ModelB},
		NumRuns:   1,
		MaxTurns:  cfg.MaxTurns,
		Policy:    policyOf(cfg),
		Scenarios: scenarios,
		Rand:      rand.New(rand.NewSource(seedOf(cfg))),
		Generator: func(model string) agent.Generator {
			if model == web.HumanName {
				return human
			}
			return llmGen(model)
		},
		Sink: st.sink(),
	}
	r.OnGame = func(i int, out engine.Outcome) {
		section("Game over")
		fmt.Printf("%s  you=%d  %s=%d\n", statusTag(out), out.P0Score, modelShort(cfg.ModelB), out.P1Score)
	}
	section(fmt.Sprintf("You are Player 0 (%s)", cfg.Objective))
	_, err = r.Run(ctx)
	return err
}

func runAnalyze(cfg Config) error {
	rep, err := analysis.AnalyzeDir(batch.Dir(cfg.AnalyzeDir), analysis.Options{Objective: cfg.Objective})
	if err != nil {
		return err
	}
	section("Analysis " + cfg.AnalyzeDir)
	b, err := yaml.Marshal(rep)
	if err != nil {
		return err
	}
	fmt.Print(string(b))
	return nil
}

func runCSV(cfg Config) error {
	if cfg.Manifest == "" {
		return errors.New("--csv needs MANIFEST")
	}
	m, err := analysis.LoadManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	if err := analysis.WriteCSV(m, cfg.CSVOut, analysis.Options{Objective: cfg.Objective}); err != nil {
		return err
	}
	log.Info().Str("csv", cfg.CSVOut).Int("iterations", len(m.Iterations)).Msg("wrote iteration table")
	return nil
}

// runFinetune builds the dataset from ANALYZE_DIR and, for a plain JSONL file,
// starts a fine-tuning job on it. FINETUNE_DRY_RUN stops after the dataset.
func runFinetune(ctx context.Context, cfg Config) error {
	n, err := analysis.Concatenate(batch.Dir(cfg.AnalyzeDir), cfg.Filter, cfg.FinetuneOut)
	if err != nil {
		return err
	}
	sub(fmt.Sprintf("%d examples → %s", n, cfg.FinetuneOut))
	if n == 0 {
		return errors.New("no games passed the filter")
	}
	if asBool(os.Getenv("FINETUNE_DRY_RUN")) || strings.HasSuffix(cfg.FinetuneOut, ".zst") {
		log.Info().Msg("dataset written; skipping upload")
		return nil
	}
	fileID, err := llm.UploadTrainingFile(ctx, cfg.FinetuneOut)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	job, err := llm.CreateFineTuningJob(ctx, cfg.FinetuneBase, fileID, cfg.FinetuneSuffix, llm.DefaultFineTuneHyperparameters())
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	log.Info().Str("job", job.ID).Str("file", fileID).Str("status", job.Status).Msg("fine-tuning job created")
	return nil
}

func serve(ctx context.Context, cfg Config, st stores) error {
	scenarios, err := batch.LoadScenarios(cfg.Contexts)
	if err != nil {
		return err
	}
	sessions := session.NewRegistry()
	ws := web.NewServer(web.Config{
		Model:              cfg.ModelB,
		Temperature:        cfg.Temperature,
		Objectives:         cfg.WebObjectives,
		Scenarios:          scenarios,
		MaxGames:           cfg.MaxGames,
		MaxTurns:           cfg.MaxTurns,
		AssistantFirstProb: cfg.AssistantFirstProb,
		Policy:             policyOf(cfg),
		Generator:          newGenerator(cfg),
		Sink:               st.sink(),
		Seed:               cfg.Seed,
	}, sessions)

	h := Router(Deps{DB: st.db, Games: st.games(), Sessions: sessions, WS: ws.Handler()})
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: h, ReadHeaderTimeout: 15 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Msgf("listening on http://localhost:%s (Ctrl+C to stop)", cfg.Port)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}
