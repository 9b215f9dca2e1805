package web

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"negotiation-bench/server/agent"
	"negotiation-bench/server/batch"
	"negotiation-bench/server/engine"
	"negotiation-bench/server/session"
	"negotiation-bench/server/store"
	"negotiation-bench/server/tokens"
)

type memSink struct {
	mu   sync.Mutex
	recs []store.Record
}

func (m *memSink) SaveOutcome(_ context.Context, r store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memSink) records() []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Record(nil), m.recs...)
}

func newTestServer(t *testing.T, cfg Config, lines ...string) (*Server, string) {
	t.Helper()
	def := engine.DefaultConfig()
	cfg.Model = "test-model"
	cfg.Scenarios = []batch.Scenario{{Counts: def.Counts, Values: def.Values}}
	cfg.Tokens = tokens.Words{}
	cfg.Seed = 7
	cfg.Generator = func(string) agent.Generator { return agent.NewScripted(lines...) }
	srv := NewServer(cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, typ string, data any) {
	t.Helper()
	ev := Event{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		ev.Data = raw
	}
	require.NoError(t, ws.WriteJSON(ev))
}

func recv(t *testing.T, ws *websocket.Conn, want string, into any) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev Event
	require.NoError(t, ws.ReadJSON(&ev))
	require.Equal(t, want, ev.Type, "payload: %s", ev.Data)
	if into != nil {
		require.NoError(t, json.Unmarshal(ev.Data, into))
	}
}

func TestWebGame(t *testing.T) {
	sink := &memSink{}
	srv, url := newTestServer(t, Config{Sink: sink, MaxGames: 1},
		"[message] ok", "[propose] (0 books, 2 hats, 3 balls)")
	ws := dial(t, url)

	recv(t, ws, TypeInstructions, nil)
	send(t, ws, TypeInitializeGame, nil)
	var in Init
	recv(t, ws, TypeInitialize, &in)
	require.Equal(t, []int{1, 2, 3}, in.Counts)
	require.Equal(t, []int{1, 3, 1}, in.Values)
	require.Equal(t, 1, in.GameNum)
	require.Equal(t, 1, in.MaxGames)
	require.Equal(t, engine.SelfInterested, in.GameMode)
	require.Equal(t, 1, srv.Sessions().Len())

	// no marker: rejected, the turn stays with the user
	send(t, ws, TypeUserMessage, "hello")
	var resp Response
	recv(t, ws, TypeResponse, &resp)
	require.NotEmpty(t, resp.Feedback)
	require.False(t, resp.GameOver)

	send(t, ws, TypeUserMessage, "[message] I want the book")
	resp = Response{}
	recv(t, ws, TypeResponse, &resp)
	require.Equal(t, "[message] ok", resp.Message)

	send(t, ws, TypeUserMessage, "[propose] (1 books, 0 hats, 0 balls)")
	var over Response
	recv(t, ws, TypeGameOver, &over)
	require.True(t, over.GameOver)
	require.Equal(t, engine.ProposalRelay, over.Message)
	require.Equal(t, session.FinalScores{UserScore: 1, AssistantScore: 8, ValidDeal: true}, *over.FinalScores)
	require.InDelta(t, 0.30, over.GameBonus, 1e-9)
	require.InDelta(t, 0.30, over.BonusPay, 1e-9)
	require.Equal(t, 1, over.GamesCompleted)
	resp = Response{}
	recv(t, ws, TypeResponse, &resp)
	require.True(t, resp.GameOver)

	recs := sink.records()
	require.Len(t, recs, 1)
	require.Equal(t, "web", recs[0].Source)
	require.Equal(t, HumanName, recs[0].P0Model)
	require.Equal(t, "test-model", recs[0].P1Model)
	require.False(t, recs[0].Disconnect)
	require.Equal(t, 4, recs[0].Outcome.MessageCount)

	// one game allowed
	send(t, ws, TypeKeepPlaying, nil)
	var e ErrorData
	recv(t, ws, TypeError, &e)
	require.Contains(t, e.Message, "limit")
}

func TestWebAssistantOpens(t *testing.T) {
	_, url := newTestServer(t, Config{AssistantFirstProb: 1}, "[message] hi there")
	ws := dial(t, url)

	recv(t, ws, TypeInstructions, nil)
	send(t, ws, TypeInitializeGame, nil)
	recv(t, ws, TypeInitialize, nil)
	var resp Response
	recv(t, ws, TypeResponse, &resp)
	require.Equal(t, "[message] hi there", resp.Message)
}

func TestWebKeepPlaying(t *testing.T) {
	_, url := newTestServer(t, Config{}, "[ABORT]")
	ws := dial(t, url)

	recv(t, ws, TypeInstructions, nil)
	send(t, ws, TypeUserMessage, "[message] hi")
	var over Response
	recv(t, ws, TypeGameOver, &over)
	require.True(t, over.FinalScores.Abort)
	require.Equal(t, session.AbortNotice, over.Message)
	require.InDelta(t, 0.25, over.GameBonus, 1e-9)
	recv(t, ws, TypeResponse, nil)

	send(t, ws, TypeKeepPlaying, nil)
	var in Init
	recv(t, ws, TypeInitialize, &in)
	require.Equal(t, 2, in.GameNum)
	require.InDelta(t, 0.25, in.Earned, 1e-9)
}

func TestWebKeepPlayingMidGameRejected(t *testing.T) {
	sink := &memSink{}
	_, url := newTestServer(t, Config{Sink: sink}, "[message] ok", "[message] still here")
	ws := dial(t, url)

	recv(t, ws, TypeInstructions, nil)
	send(t, ws, TypeUserMessage, "[message] hi")
	recv(t, ws, TypeResponse, nil)

	send(t, ws, TypeKeepPlaying, nil)
	var e ErrorData
	recv(t, ws, TypeError, &e)
	require.Contains(t, e.Message, "current game")
	require.Empty(t, sink.records())

	// the game in progress is untouched
	send(t, ws, TypeUserMessage, "[message] and now?")
	var resp Response
	recv(t, ws, TypeResponse, &resp)
	require.Equal(t, "[message] still here", resp.Message)
}

func TestWebDisconnectPersistsUnfinishedGame(t *testing.T) {
	sink := &memSink{}
	srv, url := newTestServer(t, Config{Sink: sink}, "[message] ok")
	ws := dial(t, url)

	recv(t, ws, TypeInstructions, nil)
	send(t, ws, TypeUserMessage, "[message] hi")
	recv(t, ws, TypeResponse, nil)
	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool { return len(sink.records()) == 1 }, 5*time.Second, 10*time.Millisecond)
	rec := sink.records()[0]
	require.True(t, rec.Disconnect)
	require.Zero(t, rec.Outcome.P0Score)
	require.Zero(t, rec.Outcome.P1Score)
	require.Zero(t, rec.Bonus)
	require.Equal(t, 2, rec.Outcome.MessageCount)
	require.Equal(t, engine.StatusActive, rec.Outcome.Status)
	require.Eventually(t, func() bool { return srv.Sessions().Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestBonus(t *testing.T) {
	require.Equal(t, 0.25, Bonus(engine.SelfInterested, session.FinalScores{Abort: true, UserScore: 0}))
	require.Equal(t, 0.10, Bonus(engine.Cooperative, session.FinalScores{}))
	require.InDelta(t, 1.10, Bonus(engine.SelfInterested, session.FinalScores{UserScore: 5}), 1e-9)
	require.InDelta(t, 0.60, Bonus(engine.Cooperative, session.FinalScores{UserScore: 5}), 1e-9)
	require.InDelta(t, 1.00, Bonus(engine.Competitive, session.FinalScores{UserScore: 3}), 1e-9)
	require.InDelta(t, 0.10, Bonus(engine.Competitive, session.FinalScores{UserScore: -4}), 1e-9)
}
