package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"negotiation-bench/server/agent"
	"negotiation-bench/server/batch"
	"negotiation-bench/server/engine"
	"negotiation-bench/server/session"
	"negotiation-bench/server/store"
	"negotiation-bench/server/tokens"
)

// HumanName is the model column recorded for the person's seat.
const HumanName = "human"

type Config struct {
	Model       string
	Temperature float64
	// Objectives are drawn uniformly per game; empty means self-interested only.
	Objectives         []engine.Objective
	Scenarios          []batch.Scenario
	MaxGames           int
	MaxTurns           int
	AssistantFirstProb float64
	Policy             agent.RetryPolicy
	// StepTimeout bounds one assistant reply, retries included.
	StepTimeout time.Duration
	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout time.Duration
	Generator   batch.NewGenerator
	Tokens      tokens.Counter
	Sink        store.Sink
	Seed        uint64
}

type Server struct {
	cfg      Config
	sessions *session.Registry
	upgrader websocket.Upgrader

	mu  sync.Mutex
	rng *rand.Rand
}

func NewServer(cfg Config, sessions *session.Registry) *Server {
	if cfg.MaxGames <= 0 {
		cfg.MaxGames = 40
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = engine.DefaultMaxTurns
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if len(cfg.Objectives) == 0 {
		cfg.Objectives = []engine.Objective{engine.SelfInterested}
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = agent.DefaultRetryPolicy()
	}
	if cfg.Generator == nil {
		temp := cfg.Temperature
		cfg.Generator = func(model string) agent.Generator { return agent.NewLLM(model, temp) }
	}
	if sessions == nil {
		sessions = session.NewRegistry()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		rng:      rand.New(rand.NewSource(seed)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Sessions() *session.Registry { return s.sessions }

// conn is the per-connection state. Only the handler goroutine touches it.
type conn struct {
	ws   *websocket.Conn
	sess *session.Session
	obj  engine.Objective
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}
		defer ws.Close()

		c := &conn{ws: ws, sess: s.sessions.Open()}
		lg := log.With().Str("session", c.sess.ID).Logger()
		lg.Info().Msg("connected")
		defer s.disconnect(c)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := s.newGame(c); err != nil {
			lg.Error().Err(err).Msg("failed to start game")
			return
		}
		if err := writeEvent(ws, TypeInstructions, struct{}{}); err != nil {
			return
		}

		// Reader loop. Events are handled one at a time.
		for {
			_ = ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			_, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			ev, err := DecodeEvent(msg)
			if err != nil {
				continue
			}
			if err := s.handle(ctx, c, ev); err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					break
				}
				lg.Warn().Err(err).Str("event", ev.Type).Msg("event failed")
				if werr := writeEvent(ws, TypeError, ErrorData{Message: err.Error()}); werr != nil {
					break
				}
			}
		}
	}
}

var (
	errNoGame     = errors.New("no game in progress")
	errGameLimit  = errors.New("game limit reached")
	errInProgress = errors.New("finish the current game first")
	errBadMessage = errors.New("user_message data must be a string")
)

func (s *Server) handle(ctx context.Context, c *conn, ev Event) error {
	switch ev.Type {
	case TypeInitializeGame:
		if c.sess.Current == nil {
			return errNoGame
		}
		if err := writeEvent(c.ws, TypeInitialize, s.initData(c)); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
		defer cancel()
		res, err := c.sess.Current.Open(ctx)
		if err != nil {
			return err
		}
		if res.Message == "" && !res.GameOver {
			return nil
		}
		return s.respond(ctx, c, res)

	case TypeUserMessage:
		if c.sess.Current == nil {
			return errNoGame
		}
		var text string
		if err := json.Unmarshal(ev.Data, &text); err != nil {
			return errBadMessage
		}
		ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
		defer cancel()
		res, err := c.sess.Current.Step(ctx, text)
		if err != nil {
			return err
		}
		log.Debug().Str("session", c.sess.ID).Str("user", text).Str("model", res.Message).Msg("step")
		return s.respond(ctx, c, res)

	case TypeKeepPlaying:
		if c.sess.Current != nil {
			return errInProgress
		}
		if err := s.newGame(c); err != nil {
			return err
		}
		return writeEvent(c.ws, TypeInitialize, s.initData(c))
	}
	return nil
}

// respond sends a step result; a finished game is paid, persisted and
// announced with game_over first.
func (s *Server) respond(ctx context.Context, c *conn, res session.StepResult) error {
	out := Response{StepResult: res}
	if res.GameOver {
		cur := c.sess.Current
		c.sess.Current = nil
		c.sess.Played++
		out.GameBonus = Bonus(c.obj, *res.FinalScores)
		c.sess.Earned += out.GameBonus
		out.BonusPay = c.sess.Earned
		out.GamesCompleted = c.sess.Played
		out.MaxGames = s.cfg.MaxGames

		outcome, err := cur.Outcome()
		if err != nil {
			return err
		}
		// the step deadline may already have passed when the assistant timed out
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		s.save(saveCtx, c, outcome, false, out.GameBonus)
		cancel()
		log.Info().Str("session", c.sess.ID).
			Int("user", res.FinalScores.UserScore).
			Int("partner", res.FinalScores.AssistantScore).
			Float64("bonus", out.GameBonus).
			Msg("game over")
		if err := writeEvent(c.ws, TypeGameOver, out); err != nil {
			return err
		}
	}
	return writeEvent(c.ws, TypeResponse, out)
}

// newGame deals a fresh scenario to the connection. The person always holds
// Player 0's values; a coin decides who opens.
func (s *Server) newGame(c *conn) error {
	if c.sess.Played >= s.cfg.MaxGames {
		return errGameLimit
	}
	if len(s.cfg.Scenarios) == 0 {
		return errors.New("no scenarios loaded")
	}
	s.mu.Lock()
	sc := s.cfg.Scenarios[s.rng.Intn(len(s.cfg.Scenarios))]
	obj := s.cfg.Objectives[s.rng.Intn(len(s.cfg.Objectives))]
	first := session.FirstSeat(s.rng, s.cfg.AssistantFirstProb)
	s.mu.Unlock()

	user := engine.SeatA
	players := [2]*session.Participant{}
	players[user] = session.NewParticipant(HumanName, nil)
	players[user.Other()] = session.NewParticipant(s.cfg.Model, s.cfg.Generator(s.cfg.Model))
	opts := []session.Option{session.WithPolicy(s.cfg.Policy)}
	if s.cfg.Tokens != nil {
		opts = append(opts, session.WithTokens(s.cfg.Tokens))
	}
	m, err := session.New(sc.Config(obj, s.cfg.MaxTurns, first), players, opts...)
	if err != nil {
		return err
	}
	c.sess.Current = &session.Interactive{Match: m, User: user}
	c.obj = obj
	log.Info().Str("session", c.sess.ID).Str("objective", string(obj)).Str("model", s.cfg.Model).Int("game", c.sess.Played+1).Msg("game initialized")
	return nil
}

func (s *Server) initData(c *conn) Init {
	g := c.sess.Current.Game
	vals := g.Values[c.sess.Current.User]
	in := Init{
		GameNum:  c.sess.Played + 1,
		MaxGames: s.cfg.MaxGames,
		Earned:   c.sess.Earned,
		GameMode: c.obj,
	}
	for _, it := range engine.Items {
		in.Counts = append(in.Counts, g.Counts[it])
		in.Values = append(in.Values, vals[it])
	}
	return in
}

// disconnect drops the session and records an unfinished game with zero scores.
func (s *Server) disconnect(c *conn) {
	if _, err := s.sessions.Close(c.sess.ID); err != nil {
		return
	}
	log.Info().Str("session", c.sess.ID).Int("played", c.sess.Played).Msg("disconnected")
	cur := c.sess.Current
	if cur == nil {
		return
	}
	g := cur.Game
	out := engine.Outcome{
		Counts:       g.Counts,
		P0Values:     g.Values[engine.SeatA],
		P1Values:     g.Values[engine.SeatB],
		MessageCount: len(g.Transcript()),
		TokenCount:   tokens.Total(cur.Tokens, cur.Messages()),
		Status:       g.Status(),
		Objective:    g.Objective,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.save(ctx, c, out, true, 0)
}

func (s *Server) save(ctx context.Context, c *conn, out engine.Outcome, disconnect bool, bonus float64) {
	if s.cfg.Sink == nil {
		return
	}
	rec := store.Record{
		Source:     "web",
		Batch:      c.sess.ID,
		Index:      c.sess.Played,
		P0Model:    HumanName,
		P1Model:    s.cfg.Model,
		Outcome:    out,
		Disconnect: disconnect,
		Bonus:      bonus,
	}
	if err := s.cfg.Sink.SaveOutcome(ctx, rec); err != nil {
		log.Warn().Err(err).Str("session", c.sess.ID).Msg("failed to persist web game")
	}
}

func writeEvent(ws *websocket.Conn, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Event{Type: typ, Data: raw})
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, b)
}
