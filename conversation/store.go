package conversation

import (
	"context"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/router"
)

// session pairs a Manager with the mutex serializing its turns.
type session struct {
	mu  sync.Mutex
	mgr *Manager
}

// Store keeps one Manager per session id in process memory. Turns on the
// same session run one at a time; different sessions proceed in parallel.
// Nothing survives a restart.
type Store struct {
	agents Agents
	router router.Strategy
	logger logging.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewStore creates an empty Store. optFns configure every Manager it creates.
func NewStore(agents Agents, optFns ...func(o *Options)) *Store {
	opts := Options{Router: router.Sticky(), Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		agents:   agents,
		router:   opts.Router,
		logger:   logging.OrNoOp(opts.Logger),
		sessions: make(map[string]*session),
	}
}

// Create opens a new Idle session and returns its id.
func (s *Store) Create() string {
	id := util.NewID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createSessionLocked(id)
	return id
}

// Handle runs a synchronous turn on session id, creating it when unknown.
func (s *Store) Handle(ctx context.Context, id, text string, optFns ...func(o *core.CallOptions)) (string, error) {
	sess := s.getOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.mgr.Handle(ctx, text, optFns...)
}

// Stream runs a streamed turn on session id, creating it when unknown.
func (s *Store) Stream(ctx context.Context, id, text string, onDelta DeltaFunc, optFns ...func(o *core.CallOptions)) (string, error) {
	sess := s.getOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.mgr.Stream(ctx, text, onDelta, optFns...)
}

// History returns a copy of the session's history.
func (s *Store) History(id string) ([]core.Message, error) {
	sess, err := s.lookup("Store.History", id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.mgr.History(), nil
}

// Active returns the session's active agent id ("" when Idle).
func (s *Store) Active(id string) (string, error) {
	sess, err := s.lookup("Store.Active", id)
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.mgr.Active(), nil
}

// Delete drops a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return notFound("Store.Delete", id)
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) lookup(op, id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, notFound(op, id)
	}
	return sess, nil
}

func (s *Store) getOrCreate(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	return s.createSessionLocked(id)
}

// createSessionLocked allocates and stores a new session; caller must hold
// the write lock.
func (s *Store) createSessionLocked(id string) *session {
	logger := s.logger.With("session_id", id)
	sess := &session{mgr: NewManager(s.agents, func(o *Options) {
		o.Router = s.router
		o.Logger = logger
	})}
	s.sessions[id] = sess
	return sess
}

func notFound(op, id string) error {
	return core.NewError(op, core.ErrNotFound, "session \""+id+"\"")
}
