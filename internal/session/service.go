package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/errors"
)

const (
	nameLayout      = "20060102-150405.000"
	maxNameAttempts = 3
)

type Config struct {
	Sessions domain.SessionRepository
	Quizzes  domain.QuizProvider
	Now      func() time.Time
}

type Service struct {
	sessions domain.SessionRepository
	quizzes  domain.QuizProvider
	now      func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		sessions: c.Sessions,
		quizzes:  c.Quizzes,
		now:      now,
	}
}

// CreateSessionRequest represents a request to create a new quiz session.
type CreateSessionRequest struct {
	QuizID string
	// OpenFrom defaults to the creation time.
	OpenFrom *time.Time
	// OpenUntil nil means the session never closes.
	OpenUntil *time.Time
}

// CreateSession creates a new quiz session pointing at an existing quiz.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	if req.QuizID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("quizId is required"),
			errors.WithReason(domain.ReasonInvalidInput),
		)
	}

	if _, err := s.quizzes.LoadQuiz(ctx, req.QuizID); err != nil {
		return nil, err
	}

	createdAt := s.now().UTC()
	openFrom := createdAt
	if req.OpenFrom != nil {
		openFrom = req.OpenFrom.UTC()
	}

	var openUntil *time.Time
	if req.OpenUntil != nil {
		t := req.OpenUntil.UTC()
		if !t.After(openFrom) {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("openUntil (%s) must be after openFrom (%s)", t.Format(time.RFC3339), openFrom.Format(time.RFC3339)),
				errors.WithReason(domain.ReasonInvalidInput),
				errors.WithDetail("openFrom", openFrom),
				errors.WithDetail("openUntil", t),
			)
		}
		openUntil = &t
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	ss := domain.Session{
		SessionID: id.String(),
		QuizID:    req.QuizID,
		OpenFrom:  &openFrom,
		OpenUntil: openUntil,
		CreatedAt: createdAt,
	}

	// The name is derived from the creation timestamp; on a collision the
	// next millisecond is tried.
	for attempt := 0; ; attempt++ {
		ss.SessionName = createdAt.Add(time.Duration(attempt) * time.Millisecond).Format(nameLayout)

		err = s.sessions.Insert(ctx, ss)
		if err == nil {
			break
		}
		if errors.CodeOf(err) != errors.CodeAlreadyExists || attempt+1 >= maxNameAttempts {
			return nil, fmt.Errorf("insert session: %w", err)
		}
	}

	slog.InfoContext(ctx, "session: created",
		"session_name", ss.SessionName,
		"quiz_id", ss.QuizID,
	)

	return &ss, nil
}

// GetSession returns the session by its public name.
func (s *Service) GetSession(ctx context.Context, name string) (*domain.Session, error) {
	ss, err := s.sessions.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	return &ss, nil
}

// ListOpenSessions returns the sessions accepting answers right now.
func (s *Service) ListOpenSessions(ctx context.Context) ([]domain.Session, error) {
	now := s.now()

	candidates, err := s.sessions.ListOpenAt(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	open := make([]domain.Session, 0, len(candidates))
	for _, ss := range candidates {
		if Classify(now, ss) == StatusOpen {
			open = append(open, ss)
		}
	}

	return open, nil
}
