package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"negotiation-bench/server/analysis"
	"negotiation-bench/server/engine"
)

func mustEnv(keys ...string) error {
	for _, k := range keys {
		if os.Getenv(k) == "" {
			return fmt.Errorf("missing required env var %s. Put it in .env (dev) or set it on the host (prod)", k)
		}
	}
	return nil
}
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
func floatDef(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return f
}
func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// Config is everything main reads from the environment.
type Config struct {
	Objective   engine.Objective
	ModelA      string
	ModelB      string
	Temperature float64
	Reasoning   string
	NumRuns     int
	OutputDir   string
	Contexts    string
	MaxTurns    int
	MaxRetries  int
	Seed        uint64

	DatabaseURL string
	SQLitePath  string
	AutoMigrate bool
	Port        string

	MaxGames           int
	AssistantFirstProb float64
	WebObjectives      []engine.Objective

	AnalyzeDir string
	Manifest   string
	CSVOut     string

	Filter         analysis.Filter
	FinetuneOut    string
	FinetuneSuffix string
	FinetuneBase   string

	EloStart float64
	EloK     float64
}

// loadConfig reads the environment. OPENAI_MODEL is the default for both seats.
func loadConfig() (Config, error) {
	obj, err := engine.ParseObjective(getenv("OBJECTIVE", "self"))
	if err != nil {
		return Config{}, err
	}
	filter, err := analysis.ParseFilter(os.Getenv("FILTER"))
	if err != nil {
		return Config{}, err
	}
	model := getenv("OPENAI_MODEL", "gpt-4o-mini")
	cfg := Config{
		Objective:   obj,
		ModelA:      getenv("OPENAI_MODEL_A", model),
		ModelB:      getenv("OPENAI_MODEL_B", model),
		Temperature: floatDef(os.Getenv("TEMPERATURE"), 1.0),
		Reasoning:   strings.TrimSpace(os.Getenv("REASONING_EFFORT")),
		NumRuns:     atoiDef(os.Getenv("NUM_RUNS"), 10),
		OutputDir:   getenv("OUTPUT_DIR", "data/"+string(obj)+"/"+sanitize(model)),
		Contexts:    os.Getenv("CONTEXTS_FILE"),
		MaxTurns:    atoiDef(os.Getenv("MAX_TURNS"), engine.DefaultMaxTurns),
		MaxRetries:  atoiDef(os.Getenv("MAX_RETRIES"), 5),
		Seed:        uint64(atoiDef(os.Getenv("SEED"), 0)),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		AutoMigrate: asBool(os.Getenv("AUTO_MIGRATE")),
		Port:        getenv("PORT", "8080"),

		MaxGames:           atoiDef(os.Getenv("MAX_GAMES"), 40),
		AssistantFirstProb: floatDef(os.Getenv("ASSISTANT_FIRST_PROB"), 0.5),

		AnalyzeDir: os.Getenv("ANALYZE_DIR"),
		Manifest:   os.Getenv("MANIFEST"),
		CSVOut:     getenv("CSV_OUT", "stats.csv"),

		Filter:         filter,
		FinetuneOut:    getenv("FINETUNE_OUT", "game_data.jsonl"),
		FinetuneSuffix: os.Getenv("FINETUNE_SUFFIX"),
		FinetuneBase:   getenv("FINETUNE_BASE_MODEL", model),

		EloStart: floatDef(os.Getenv("ELO_START"), 1500),
		EloK:     floatDef(os.Getenv("ELO_K"), 24),
	}
	if cfg.AnalyzeDir == "" {
		cfg.AnalyzeDir = cfg.OutputDir
	}
	if cfg.AssistantFirstProb < 0 || cfg.AssistantFirstProb > 1 {
		return Config{}, fmt.Errorf("ASSISTANT_FIRST_PROB must be in [0,1], got %v", cfg.AssistantFirstProb)
	}
	if cfg.MaxRetries <= 0 {
		return Config{}, fmt.Errorf("MAX_RETRIES must be positive, got %d", cfg.MaxRetries)
	}

	// WEB_OBJECTIVES=self,coop,comp draws one per web game
	for _, s := range strings.Split(getenv("WEB_OBJECTIVES", string(obj)), ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		o, err := engine.ParseObjective(s)
		if err != nil {
			return Config{}, fmt.Errorf("WEB_OBJECTIVES: %w", err)
		}
		cfg.WebObjectives = append(cfg.WebObjectives, o)
	}
	return cfg, nil
}

// sanitize turns a model id into a directory name.
func sanitize(model string) string {
	r := strings.NewReplacer("/", "_", ":", "_", " ", "_")
	return r.Replace(strings.TrimSpace(model))
}
