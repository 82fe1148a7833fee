package result

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizgrade/internal/domain"
)

// ComputeQuestionStats aggregates every stored grade of a session per
// question. It is recomputed from scratch on each call.
func ComputeQuestionStats(subs []domain.Submission) map[string]domain.QuestionStat {
	stats := make(map[string]domain.QuestionStat)

	for _, sub := range subs {
		for _, g := range sub.Grades {
			st, ok := stats[g.QuestionID]
			if !ok {
				st = domain.QuestionStat{
					QuestionID:           g.QuestionID,
					PerOptionChosenCount: make(map[string]int),
				}
			}

			st.TotalResponses++
			if g.Points > 0 {
				st.CorrectCount++
			}
			for _, id := range g.ChosenOptionIDs {
				st.PerOptionChosenCount[id]++
			}

			stats[g.QuestionID] = st
		}
	}

	return stats
}

type QuestionStats struct {
	domain.QuestionStat
	CorrectPercent decimal.Decimal `json:"correctPercent"`
}

type SessionStats struct {
	SessionName string          `json:"sessionName"`
	QuizID      string          `json:"quizId"`
	Submissions int             `json:"submissions"`
	Questions   []QuestionStats `json:"questions"`
}

// GetSessionStats returns the statistics of every quiz question in quiz
// order. Questions nobody answered are reported with zero counts. Unlike
// results, statistics are not gated by disclosure.
func (s *Service) GetSessionStats(ctx context.Context, sessionName string) (*SessionStats, error) {
	ss, err := s.sessions.GetByName(ctx, sessionName)
	if err != nil {
		return nil, err
	}

	quiz, err := s.quizzes.LoadQuiz(ctx, ss.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	subs, err := s.submissions.ListBySession(ctx, ss.SessionName)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	computed := ComputeQuestionStats(subs)

	out := &SessionStats{
		SessionName: ss.SessionName,
		QuizID:      ss.QuizID,
		Submissions: len(subs),
		Questions:   make([]QuestionStats, 0, len(quiz.Questions)),
	}

	for _, q := range quiz.Questions {
		st, ok := computed[q.ID]
		if !ok {
			st = domain.QuestionStat{QuestionID: q.ID, PerOptionChosenCount: map[string]int{}}
		}

		out.Questions = append(out.Questions, QuestionStats{
			QuestionStat:   st,
			CorrectPercent: st.CorrectPercent(),
		})
	}

	return out, nil
}
