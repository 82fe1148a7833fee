package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/event"
	"github.com/victornm/quizgrade/internal/session"
)

const (
	publishInterval = 200 * time.Millisecond
	publishTimeout  = 5 * time.Second
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Sessions domain.SessionRepository
	Prefix   string
	Now      func() time.Time
}

type Service struct {
	eb       *event.Bus
	redis    redis.UniversalClient
	sessions domain.SessionRepository
	prefix   string
	now      func() time.Time

	mu       sync.Mutex
	closed   bool
	trailing map[string]*time.Timer
	flushes  sync.WaitGroup
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		eb:       c.EventBus,
		redis:    c.Redis,
		sessions: c.Sessions,
		prefix:   c.Prefix,
		now:      now,
		trailing: make(map[string]*time.Timer),
	}

	s.eb.Subscribe(domain.EventNameSubmissionAccepted, func(ctx context.Context, e event.Event) error {
		return s.RecordSubmission(ctx, e.(domain.EventSubmissionAccepted))
	})

	return s
}

type GetLeaderboardRequest struct {
	SessionName string
}

// GetLeaderboardResponse holds exactly one of Leaderboard or Pending.
type GetLeaderboardResponse struct {
	Leaderboard *domain.Leaderboard
	Pending     *domain.PendingDisclosure
}

// GetLeaderboard returns the ranking of a session, best score first. Scores
// follow the same disclosure rule as results: while the session is open and
// has a close time only the pending indicator is returned. A session nobody
// submitted to has an empty ranking.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*GetLeaderboardResponse, error) {
	ss, err := s.sessions.GetByName(ctx, req.SessionName)
	if err != nil {
		return nil, err
	}

	if pending, ok := session.Disclosure(s.now(), ss); !ok {
		return &GetLeaderboardResponse{Pending: pending}, nil
	}

	l, err := s.ranking(ctx, ss.SessionName)
	if err != nil {
		return nil, err
	}

	return &GetLeaderboardResponse{Leaderboard: l}, nil
}

func (s *Service) ranking(ctx context.Context, sessionName string) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(sessionName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			UserCode: z.Member.(string),
			Score:    z.Score,
		})
	}

	return &domain.Leaderboard{
		SessionName: sessionName,
		Entries:     entries,
	}, nil
}

// RecordSubmission places the participant's final score on the session
// ranking. Submissions are immutable, so the score is only ever set once;
// NX keeps a redelivered event from touching it again.
func (s *Service) RecordSubmission(ctx context.Context, e domain.EventSubmissionAccepted) error {
	sub := e.Submission

	if err := s.redis.ZAddNX(ctx, s.getLeaderboardKey(sub.SessionName), redis.Z{
		Score:  float64(sub.Score),
		Member: sub.UserCode,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, sub)
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per
// session and publish interval, across all instances sharing the Redis.
// Submissions landing inside the interval are covered by one trailing
// publish at its end.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, sub domain.Submission) error {
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(sub.SessionName), sub.CreatedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		s.scheduleTrailingPublish(sub.SessionName)
		return nil
	}

	return s.publishLeaderboard(ctx, sub.SessionName)
}

func (s *Service) scheduleTrailingPublish(sessionName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.trailing[sessionName]; ok {
		return
	}

	s.flushes.Add(1)
	s.trailing[sessionName] = time.AfterFunc(publishInterval, func() {
		s.flush(sessionName)
	})
}

func (s *Service) flush(sessionName string) {
	defer s.flushes.Done()

	s.mu.Lock()
	delete(s.trailing, sessionName)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.publishLeaderboard(ctx, sessionName); err != nil {
		slog.ErrorContext(ctx, "leaderboard: trailing publish failed",
			"session_name", sessionName,
			"error", err,
		)
	}
}

// Close publishes the trailing updates still waiting on their interval and
// waits for them. Call it before stopping the event bus.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	var due []string
	for name, t := range s.trailing {
		if t.Stop() {
			due = append(due, name)
		}
	}
	s.mu.Unlock()

	for _, name := range due {
		s.flush(name)
	}

	s.flushes.Wait()
}

// publishLeaderboard announces the current ranking, unless the session still
// hides its scores.
func (s *Service) publishLeaderboard(ctx context.Context, sessionName string) error {
	resp, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		SessionName: sessionName,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%s: %w", sessionName, err)
	}

	if resp.Pending != nil {
		slog.DebugContext(ctx, "leaderboard: disclosure pending, update not published",
			"session_name", sessionName,
			"open_after", resp.Pending.OpenAfter,
		)
		return nil
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *resp.Leaderboard,
	})

	return nil
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, session)
}

func (s *Service) getLeaderboardTimeKey(session string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, session)
}
