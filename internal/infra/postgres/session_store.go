package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/errors"
)

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `session_id, session_name, quiz_id, open_from, open_until, create_time`

func (s *SessionStore) Insert(ctx context.Context, ss domain.Session) error {
	const stmt = `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := s.db.Exec(ctx, stmt, ss.SessionID, ss.SessionName, ss.QuizID, ss.OpenFrom, ss.OpenUntil, ss.CreatedAt)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session name taken: %s", ss.SessionName),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func (s *SessionStore) GetByName(ctx context.Context, name string) (domain.Session, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_name = $1;`

	rows, err := s.db.Query(ctx, stmt, name)
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}

	ss, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.SessionNotFound(name)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}

	return ss, nil
}

// ListOpenAt returns sessions whose window contains t, newest first.
func (s *SessionStore) ListOpenAt(ctx context.Context, t time.Time) ([]domain.Session, error) {
	const stmt = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE (open_from IS NULL OR open_from <= $1)
  AND (open_until IS NULL OR open_until >= $1)
ORDER BY create_time DESC;`

	rows, err := s.db.Query(ctx, stmt, t)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}

	return pgx.CollectRows(rows, scanSession)
}

func scanSession(r pgx.CollectableRow) (domain.Session, error) {
	var ss domain.Session
	if err := r.Scan(&ss.SessionID, &ss.SessionName, &ss.QuizID, &ss.OpenFrom, &ss.OpenUntil, &ss.CreatedAt); err != nil {
		return domain.Session{}, err
	}
	return ss, nil
}
