package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNoSession = errors.New("no such session")

// Session is one connected player. Current is nil between games.
type Session struct {
	ID      string
	Current *Interactive
	// Played counts finished games.
	Played int
	// Earned is the bonus accumulated over finished games.
	Earned float64
}

// Registry owns live sessions from connect to disconnect. Sessions share no
// state; the registry lock only guards the index.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Open registers a new session under a fresh id.
func (r *Registry) Open() *Session {
	s := &Session{ID: uuid.NewString()}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Close removes a session and returns it so the caller can persist what is left.
func (r *Registry) Close(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	delete(r.sessions, id)
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
