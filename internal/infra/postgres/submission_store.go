package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizgrade/internal/domain"
)

// SubmissionStore persists submissions. The at-most-one-per-participant
// rule is held by UNIQUE (session_name, user_code); transactions also take a
// transaction-scoped advisory lock on the participant key so the duplicate
// check inside a transaction is authoritative.
type SubmissionStore struct {
	db *pgxpool.Pool
}

func NewSubmissionStore(db *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{db: db}
}

const submissionColumns = `submission_id, session_id, session_name, user_code, grades, score, max_score, create_time`

func (s *SubmissionStore) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.SubmissionTx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !stderrors.Is(rbErr, pgx.ErrTxClosed) {
				err = stderrors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(ctx, &submissionTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		if isRetryable(err) {
			return domain.TransactionAborted(err)
		}
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *SubmissionStore) GetByToken(ctx context.Context, token string) (domain.Submission, error) {
	const stmt = `SELECT ` + submissionColumns + ` FROM submissions WHERE submission_id = $1;`

	rows, err := s.db.Query(ctx, stmt, token)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("get submission: %w", err)
	}

	sub, err := pgx.CollectExactlyOneRow(rows, scanSubmission)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ResultNotFound(token)
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("get submission: %w", err)
	}

	return sub, nil
}

func (s *SubmissionStore) ListBySession(ctx context.Context, sessionName string) ([]domain.Submission, error) {
	const stmt = `
SELECT ` + submissionColumns + `
FROM submissions
WHERE session_name = $1
ORDER BY create_time;`

	rows, err := s.db.Query(ctx, stmt, sessionName)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	return pgx.CollectRows(rows, scanSubmission)
}

type submissionTx struct {
	tx pgx.Tx
}

func (t *submissionTx) FindByParticipant(ctx context.Context, sessionName, userCode string) (domain.Submission, bool, error) {
	const (
		lockStmt = `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0));`
		stmt     = `SELECT ` + submissionColumns + ` FROM submissions WHERE session_name = $1 AND user_code = $2;`
	)

	if _, err := t.tx.Exec(ctx, lockStmt, sessionName, userCode); err != nil {
		if isRetryable(err) {
			return domain.Submission{}, false, domain.TransactionAborted(err)
		}
		return domain.Submission{}, false, fmt.Errorf("lock participant: %w", err)
	}

	rows, err := t.tx.Query(ctx, stmt, sessionName, userCode)
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("find submission: %w", err)
	}

	sub, err := pgx.CollectExactlyOneRow(rows, scanSubmission)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, false, nil
	}
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("find submission: %w", err)
	}

	return sub, true, nil
}

func (t *submissionTx) Insert(ctx context.Context, sub domain.Submission) error {
	const stmt = `INSERT INTO submissions (` + submissionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := t.tx.Exec(ctx, stmt,
		sub.ID, sub.SessionID, sub.SessionName, sub.UserCode, sub.Grades, sub.Score, sub.MaxScore, sub.CreatedAt)
	if isUniqueViolation(err) {
		return domain.DuplicateSubmission(sub.SessionName, sub.UserCode, err)
	}
	if isRetryable(err) {
		return domain.TransactionAborted(err)
	}
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	return nil
}

func scanSubmission(r pgx.CollectableRow) (domain.Submission, error) {
	var sub domain.Submission
	err := r.Scan(&sub.ID, &sub.SessionID, &sub.SessionName, &sub.UserCode, &sub.Grades, &sub.Score, &sub.MaxScore, &sub.CreatedAt)
	if err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}
