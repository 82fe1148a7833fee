package domain

import (
	"time"

	"github.com/victornm/quizgrade/internal/errors"
)

// Reasons let clients tell business-rule rejections apart.
const (
	ReasonInvalidInput        = "INVALID_INPUT"
	ReasonSessionNotFound     = "SESSION_NOT_FOUND"
	ReasonResultNotFound      = "RESULT_NOT_FOUND"
	ReasonQuizNotFound        = "QUIZ_NOT_FOUND"
	ReasonSessionNotYetOpen   = "SESSION_NOT_YET_OPEN"
	ReasonSessionClosed       = "SESSION_CLOSED"
	ReasonDuplicateSubmission = "DUPLICATE_SUBMISSION"
	ReasonTransactionAborted  = "TRANSACTION_ABORTED"
)

func SessionNotFound(name string) *errors.Error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("session not found: %s", name),
		errors.WithReason(ReasonSessionNotFound),
		errors.WithDetail("sessionName", name),
	)
}

func ResultNotFound(token string) *errors.Error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("result not found: %s", token),
		errors.WithReason(ReasonResultNotFound),
		errors.WithDetail("resultToken", token),
	)
}

func QuizNotFound(id string) *errors.Error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("quiz not found: %s", id),
		errors.WithReason(ReasonQuizNotFound),
		errors.WithDetail("quizId", id),
	)
}

func SessionNotYetOpen(name string, openFrom time.Time) *errors.Error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("session %s is not open yet", name),
		errors.WithReason(ReasonSessionNotYetOpen),
		errors.WithDetail("sessionName", name),
		errors.WithDetail("openFrom", openFrom),
	)
}

func SessionClosed(name string, openUntil time.Time) *errors.Error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("session %s is closed", name),
		errors.WithReason(ReasonSessionClosed),
		errors.WithDetail("sessionName", name),
		errors.WithDetail("openUntil", openUntil),
	)
}

func DuplicateSubmission(sessionName, userCode string, cause error) *errors.Error {
	return errors.New(errors.CodeAlreadyExists,
		errors.WithMessagef("answers already submitted: session=%s userCode=%s", sessionName, userCode),
		errors.WithReason(ReasonDuplicateSubmission),
		errors.WithDetail("sessionName", sessionName),
		errors.WithDetail("userCode", userCode),
		errors.WithCause(cause),
	)
}

// TransactionAborted marks a storage conflict; the caller may retry the
// whole operation.
func TransactionAborted(cause error) *errors.Error {
	return errors.New(errors.CodeAborted,
		errors.WithMessagef("transaction aborted, retry the request"),
		errors.WithReason(ReasonTransactionAborted),
		errors.WithCause(cause),
	)
}
