package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizgrade/internal/domain"
)

// PostgresLoader loads quiz JSONB documents from the quizzes table.
type PostgresLoader struct {
	db *pgxpool.Pool
}

func NewPostgresLoader(db *pgxpool.Pool) *PostgresLoader {
	return &PostgresLoader{db: db}
}

func (l *PostgresLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	const stmt = `SELECT data FROM quizzes WHERE id = $1;`

	var raw []byte
	err := l.db.QueryRow(ctx, stmt, quizID).Scan(&raw)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.QuizNotFound(quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", quizID, err)
	}

	var q domain.Quiz
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz %s: %w", quizID, err)
	}
	if q.ID == "" {
		q.ID = quizID
	}

	return q, nil
}

// SaveQuiz upserts a quiz definition. Sessions must only point at quizzes
// that are no longer edited; replacing a quiz in use changes the displayed
// question text of existing results.
func (l *PostgresLoader) SaveQuiz(ctx context.Context, q domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (id, data) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, update_time = now();`

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quiz %s: %w", q.ID, err)
	}

	if _, err := l.db.Exec(ctx, stmt, q.ID, data); err != nil {
		return fmt.Errorf("save quiz %s: %w", q.ID, err)
	}

	return nil
}
