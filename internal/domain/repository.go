package domain

import (
	"context"
	"time"
)

// QuizProvider loads quiz definitions. Implementations return QuizNotFound
// when the quiz does not exist.
type QuizProvider interface {
	LoadQuiz(ctx context.Context, quizID string) (Quiz, error)
}

// SessionRepository persists sessions. Get returns SessionNotFound when the
// name is unknown; Insert fails with CodeAlreadyExists on a name collision.
type SessionRepository interface {
	Insert(ctx context.Context, s Session) error
	GetByName(ctx context.Context, name string) (Session, error)
	ListOpenAt(ctx context.Context, t time.Time) ([]Session, error)
}

// SubmissionRepository persists submissions. At most one submission may
// exist per (SessionName, UserCode).
type SubmissionRepository interface {
	// InTx runs fn as one atomic unit. fn's error aborts the unit.
	InTx(ctx context.Context, fn func(ctx context.Context, tx SubmissionTx) error) error
	GetByToken(ctx context.Context, token string) (Submission, error)
	ListBySession(ctx context.Context, sessionName string) ([]Submission, error)
}

// SubmissionTx is the view of the store inside InTx. FindByParticipant
// serializes concurrent transactions on the same participant key.
type SubmissionTx interface {
	FindByParticipant(ctx context.Context, sessionName, userCode string) (Submission, bool, error)
	Insert(ctx context.Context, s Submission) error
}
