// Package result assembles disclosed, display-ready results and the
// per-session question statistics they are compared against.
package result

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/session"
)

type Config struct {
	Sessions    domain.SessionRepository
	Submissions domain.SubmissionRepository
	Quizzes     domain.QuizProvider
	Now         func() time.Time
}

type Service struct {
	sessions    domain.SessionRepository
	submissions domain.SubmissionRepository
	quizzes     domain.QuizProvider
	now         func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		sessions:    c.Sessions,
		submissions: c.Submissions,
		quizzes:     c.Quizzes,
		now:         now,
	}
}

// GetResultResponse holds exactly one of Result or Pending.
type GetResultResponse struct {
	Result  *domain.Result
	Pending *domain.PendingDisclosure
}

// GetResult returns the result behind a token. While the owning session is
// still open and has a close time, only the pending indicator is returned.
func (s *Service) GetResult(ctx context.Context, token string) (*GetResultResponse, error) {
	sub, err := s.submissions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	ss, err := s.sessions.GetByName(ctx, sub.SessionName)
	if err != nil {
		return nil, err
	}

	if pending, ok := session.Disclosure(s.now(), ss); !ok {
		slog.DebugContext(ctx, "result: disclosure pending",
			"session_name", ss.SessionName,
			"open_after", pending.OpenAfter,
		)
		return &GetResultResponse{Pending: pending}, nil
	}

	quiz, err := s.quizzes.LoadQuiz(ctx, ss.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	subs, err := s.submissions.ListBySession(ctx, ss.SessionName)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	return &GetResultResponse{
		Result: assemble(sub, quiz, ComputeQuestionStats(subs)),
	}, nil
}

func assemble(sub domain.Submission, quiz domain.Quiz, stats map[string]domain.QuestionStat) *domain.Result {
	questions := make(map[string]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions[q.ID] = q
	}

	r := &domain.Result{
		ResultToken: sub.ID,
		SessionName: sub.SessionName,
		QuizTitle:   quiz.Title,
		UserCode:    sub.UserCode,
		Score:       sub.Score,
		MaxScore:    sub.MaxScore,
		SubmittedAt: sub.CreatedAt,
		Questions:   make([]domain.ResultQuestion, 0, len(sub.Grades)),
	}

	for _, g := range sub.Grades {
		st := stats[g.QuestionID]

		rq := domain.ResultQuestion{
			QuestionID:            g.QuestionID,
			Points:                g.Points,
			MaxPoints:             g.MaxPoints,
			Correct:               !g.Unknown && g.Points == g.MaxPoints,
			Unknown:               g.Unknown,
			AverageCorrectPercent: st.CorrectPercent(),
		}

		if q, ok := questions[g.QuestionID]; ok {
			rq.Text = q.Text
			rq.Options = make([]domain.ResultOption, 0, len(q.Options))
			for _, o := range q.Options {
				rq.Options = append(rq.Options, resultOption(o.ID, o.Text, g, st))
			}
		} else {
			// The question is gone from the quiz; fall back to the ids the
			// grade still remembers.
			rq.Options = make([]domain.ResultOption, 0, len(g.ChosenOptionIDs)+len(g.CorrectOptionIDs))
			for _, id := range union(g.CorrectOptionIDs, g.ChosenOptionIDs) {
				rq.Options = append(rq.Options, resultOption(id, "", g, st))
			}
		}

		r.Questions = append(r.Questions, rq)
	}

	return r
}

func resultOption(id, text string, g domain.Grade, st domain.QuestionStat) domain.ResultOption {
	return domain.ResultOption{
		ID:          id,
		Text:        text,
		Correct:     slices.Contains(g.CorrectOptionIDs, id),
		Chosen:      slices.Contains(g.ChosenOptionIDs, id),
		ChosenCount: st.PerOptionChosenCount[id],
	}
}

func union(a, b []string) []string {
	out := append(slices.Clone(a), b...)
	slices.Sort(out)
	return slices.Compact(out)
}
