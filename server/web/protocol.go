// Package web serves model-vs-person negotiation games over a WebSocket.
//
// Every frame is a JSON object {"type": ..., "data": ...}. The client sends
// initialize_game, user_message (data is the message text) and keep_playing;
// the server answers with instructions, initialize, response, game_over and
// error.
package web

import (
	"encoding/json"

	"negotiation-bench/server/engine"
	"negotiation-bench/server/session"
)

const (
	TypeInitializeGame = "initialize_game"
	TypeUserMessage    = "user_message"
	TypeKeepPlaying    = "keep_playing"

	TypeInstructions = "instructions"
	TypeInitialize   = "initialize"
	TypeResponse     = "response"
	TypeGameOver     = "game_over"
	TypeError        = "error"
)

// Event is one frame in either direction.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func DecodeEvent(b []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(b, &ev)
	return ev, err
}

// Init describes a new game to the person playing it.
type Init struct {
	Counts   []int            `json:"counts"`
	Values   []int            `json:"values"`
	GameNum  int              `json:"game_num"`
	MaxGames int              `json:"max_games"`
	Earned   float64          `json:"earned"`
	GameMode engine.Objective `json:"game_mode"`
}

// Response is a step result plus, at game end, the pay summary.
type Response struct {
	session.StepResult
	GameBonus      float64 `json:"game_bonus,omitempty"`
	BonusPay       float64 `json:"bonus_pay,omitempty"`
	GamesCompleted int     `json:"num_games_completed,omitempty"`
	MaxGames       int     `json:"max_games,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// Bonus is the pay for one finished game: a flat 0.25 for an abort, 0.10 for
// scoring nothing, otherwise 0.10 plus a per-point rate that depends on the
// objective. Competitive pay never goes below the base.
func Bonus(obj engine.Objective, fs session.FinalScores) float64 {
	switch {
	case fs.Abort:
		return 0.25
	case fs.UserScore == 0:
		return 0.10
	}
	pts := float64(fs.UserScore)
	switch obj {
	case engine.Cooperative:
		return 0.10 + pts*0.10
	case engine.Competitive:
		return 0.10 + max(pts*0.30, 0)
	default:
		return 0.10 + pts*0.20
	}
}
