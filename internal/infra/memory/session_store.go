package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/errors"
)

// SessionStore is an in-memory implementation of domain.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
	}
}

func (s *SessionStore) Insert(_ context.Context, ss domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[ss.SessionName]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("session name taken: %s", ss.SessionName))
	}
	s.sessions[ss.SessionName] = ss
	return nil
}

func (s *SessionStore) GetByName(_ context.Context, name string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ss, ok := s.sessions[name]
	if !ok {
		return domain.Session{}, domain.SessionNotFound(name)
	}
	return ss, nil
}

func (s *SessionStore) ListOpenAt(_ context.Context, t time.Time) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Session
	for _, ss := range s.sessions {
		if ss.OpenFrom != nil && t.Before(*ss.OpenFrom) {
			continue
		}
		if ss.OpenUntil != nil && t.After(*ss.OpenUntil) {
			continue
		}
		out = append(out, ss)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
