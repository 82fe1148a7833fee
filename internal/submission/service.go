// Package submission accepts a participant's answer sheet for a session,
// grades it and stores it at most once per participant.
package submission

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/errors"
	"github.com/victornm/quizgrade/internal/event"
	"github.com/victornm/quizgrade/internal/grading"
	"github.com/victornm/quizgrade/internal/session"
	"github.com/victornm/quizgrade/internal/telemetry"
)

const outcomeAccepted = "accepted"

type Config struct {
	EventBus    *event.Bus
	Sessions    domain.SessionRepository
	Submissions domain.SubmissionRepository
	Quizzes     domain.QuizProvider
	Now         func() time.Time
}

type Service struct {
	eb          *event.Bus
	sessions    domain.SessionRepository
	submissions domain.SubmissionRepository
	quizzes     domain.QuizProvider
	now         func() time.Time
	validate    *validator.Validate
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		eb:          c.EventBus,
		sessions:    c.Sessions,
		submissions: c.Submissions,
		quizzes:     c.Quizzes,
		now:         now,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

type SubmitRequest struct {
	SessionName string                   `validate:"required,max=100"`
	UserCode    string                   `validate:"required,max=100"`
	Answers     []domain.SubmittedAnswer `validate:"required,min=1,max=1000,unique=QuestionID,dive"`
}

type SubmitResponse struct {
	ResultToken string `json:"resultToken"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"maxScore"`
}

// Submit grades and stores the answer sheet of a participant. The request is
// validated first, then the session must exist and be open. A participant
// that already submitted to the session gets DuplicateSubmission.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (resp *SubmitResponse, err error) {
	defer func() {
		telemetry.SubmissionsTotal.WithLabelValues(outcomeOf(err)).Inc()
	}()

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ss, err := s.sessions.GetByName(ctx, req.SessionName)
	if err != nil {
		return nil, err
	}

	if err := session.CheckSubmission(s.now(), ss); err != nil {
		return nil, err
	}

	var sub domain.Submission
	err = s.submissions.InTx(ctx, func(ctx context.Context, tx domain.SubmissionTx) error {
		_, found, err := tx.FindByParticipant(ctx, ss.SessionName, req.UserCode)
		if err != nil {
			return err
		}
		if found {
			return domain.DuplicateSubmission(ss.SessionName, req.UserCode, nil)
		}

		quiz, err := s.quizzes.LoadQuiz(ctx, ss.QuizID)
		if err != nil {
			return fmt.Errorf("load quiz: %w", err)
		}

		start := time.Now()
		outcome := grading.Grade(req.Answers, grading.BuildKey(quiz))
		telemetry.GradingDuration.Observe(time.Since(start).Seconds())

		sub = domain.Submission{
			ID:          uuid.NewString(),
			SessionID:   ss.SessionID,
			SessionName: ss.SessionName,
			UserCode:    req.UserCode,
			Grades:      outcome.Grades,
			Score:       outcome.Score,
			MaxScore:    outcome.MaxScore,
			CreatedAt:   s.now().UTC(),
		}

		return tx.Insert(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "submission: accepted",
		"session_name", sub.SessionName,
		"user_code", sub.UserCode,
		"score", sub.Score,
		"max_score", sub.MaxScore,
	)

	s.eb.Publish(ctx, domain.EventSubmissionAccepted{
		Submission: sub,
	})

	return &SubmitResponse{
		ResultToken: sub.ID,
		Score:       sub.Score,
		MaxScore:    sub.MaxScore,
	}, nil
}

func (s *Service) validateRequest(req SubmitRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Internal(err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}

	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid submission: %s", strings.Join(fields, "; ")),
		errors.WithReason(domain.ReasonInvalidInput),
		errors.WithDetail("violations", fields),
		errors.WithCause(err),
	)
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeAccepted
	}

	e := errors.Convert(err)
	if e.Reason != "" {
		return strings.ToLower(e.Reason)
	}
	return "error"
}
