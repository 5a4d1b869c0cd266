package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/jac-chat/backend/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	session    chat.Session
	controller *Controller
}

// Service keeps the live conversations. Sessions are in memory only and are
// discarded by EndSession or process exit.
type Service struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService returns a registry that builds every controller from opts.
func NewService(opts Options) *Service {
	return &Service{
		opts:     opts,
		sessions: make(map[string]*entry),
	}
}

// CreateSession starts a conversation seeded with the greeting.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	controller, err := NewController(s.opts)
	if err != nil {
		return chat.Session{}, err
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		State:     chat.StateIdle,
	}

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session, controller: controller}
	s.mu.Unlock()

	log.Info().Str("component", "chat").Str("session", session.ID).Msg("session created")
	return session, nil
}

// GetSession retrieves a session by identifier with its current state.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	session := e.session
	session.State = e.controller.State()
	return session, nil
}

// Controller returns the controller that owns sessionID.
func (s *Service) Controller(_ context.Context, sessionID string) (*Controller, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.controller, nil
}

// LoadTranscript returns the messages of the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.controller.Log().Messages(), nil
}

// Submit forwards in to the session's controller.
func (s *Service) Submit(ctx context.Context, sessionID string, in Input) (Outcome, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return Outcome{}, err
	}
	return e.controller.Submit(ctx, in)
}

// EndSession discards the session and its log.
func (s *Service) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.controller.Close()
	log.Info().Str("component", "chat").Str("session", sessionID).Int("messages", e.controller.Log().Len()).Msg("session ended")
	return nil
}

func (s *Service) now() time.Time {
	if s.opts.Now != nil {
		return s.opts.Now()
	}
	return time.Now()
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}
