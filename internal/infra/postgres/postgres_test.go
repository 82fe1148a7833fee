package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/errors"
	"github.com/victornm/quizgrade/internal/event"
	"github.com/victornm/quizgrade/internal/infra/postgres"
	"github.com/victornm/quizgrade/internal/infra/postgres/migrations"
	"github.com/victornm/quizgrade/internal/quiz"
	"github.com/victornm/quizgrade/internal/submission"
)

func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	requireDocker(t)

	ctx := context.Background()
	db := startPostgres(t, ctx)

	loader := quiz.NewPostgresLoader(db)
	require.NoError(t, loader.SaveQuiz(ctx, domain.Quiz{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []domain.Question{{
			ID:      "q1",
			Text:    "Capital of France?",
			Options: []domain.Option{{ID: "a", Text: "Lyon"}, {ID: "b", Text: "Paris"}},
			// legacy format
			CorrectIDs: []string{"b"},
		}},
	}))

	sessions := postgres.NewSessionStore(db)
	submissions := postgres.NewSubmissionStore(db)

	from := time.Now().Add(-time.Minute).UTC().Truncate(time.Microsecond)
	until := from.Add(time.Hour)
	ss := domain.Session{
		SessionID:   "0190a6f0-0000-7000-8000-000000000001",
		SessionName: "20260301-090000.000",
		QuizID:      "quiz-1",
		OpenFrom:    &from,
		OpenUntil:   &until,
		CreatedAt:   from,
	}

	t.Run("sessions", func(t *testing.T) {
		require.NoError(t, sessions.Insert(ctx, ss))
		assert.Equal(t, errors.CodeAlreadyExists, errors.CodeOf(sessions.Insert(ctx, ss)))

		got, err := sessions.GetByName(ctx, ss.SessionName)
		require.NoError(t, err)
		assert.True(t, from.Equal(*got.OpenFrom))
		assert.True(t, until.Equal(*got.OpenUntil))

		_, err = sessions.GetByName(ctx, "missing")
		assert.Equal(t, domain.ReasonSessionNotFound, errors.Convert(err).Reason)

		open, err := sessions.ListOpenAt(ctx, from.Add(time.Second))
		require.NoError(t, err)
		assert.Len(t, open, 1)

		open, err = sessions.ListOpenAt(ctx, until.Add(time.Second))
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("quiz loader", func(t *testing.T) {
		q, err := loader.LoadQuiz(ctx, "quiz-1")
		require.NoError(t, err)
		assert.Equal(t, "Capitals", q.Title)

		_, err = loader.LoadQuiz(ctx, "missing")
		assert.Equal(t, domain.ReasonQuizNotFound, errors.Convert(err).Reason)
	})

	t.Run("concurrent submissions from one participant", func(t *testing.T) {
		const n = 20

		eb := event.NewBus()
		svc := submission.NewService(submission.Config{
			EventBus:    eb,
			Sessions:    sessions,
			Submissions: submissions,
			Quizzes:     loader,
		})

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			tokens   []string
			rejected int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := svc.Submit(ctx, submission.SubmitRequest{
					SessionName: ss.SessionName,
					UserCode:    "u1",
					Answers:     []domain.SubmittedAnswer{{QuestionID: "q1", Chosen: []string{"b"}}},
				})

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					tokens = append(tokens, resp.ResultToken)
					return
				}
				if errors.Convert(err).Reason == domain.ReasonDuplicateSubmission {
					rejected++
				}
			}()
		}
		wg.Wait()
		eb.Stop()

		require.Len(t, tokens, 1)
		assert.Equal(t, n-1, rejected)

		sub, err := submissions.GetByToken(ctx, tokens[0])
		require.NoError(t, err)
		assert.Equal(t, 1, sub.Score)
		assert.Equal(t, []domain.Grade{{
			QuestionID:       "q1",
			CorrectOptionIDs: []string{"b"},
			ChosenOptionIDs:  []string{"b"},
			Points:           1,
			MaxPoints:        1,
		}}, sub.Grades)

		all, err := submissions.ListBySession(ctx, ss.SessionName)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		_, err = submissions.GetByToken(ctx, "00000000-0000-4000-8000-000000000000")
		assert.Equal(t, domain.ReasonResultNotFound, errors.Convert(err).Reason)
	})

	t.Run("unique constraint backs the transaction check", func(t *testing.T) {
		dup := domain.Submission{
			ID:          "00000000-0000-4000-8000-000000000001",
			SessionID:   ss.SessionID,
			SessionName: ss.SessionName,
			UserCode:    "u1",
			Grades:      []domain.Grade{},
			CreatedAt:   time.Now(),
		}

		err := submissions.InTx(ctx, func(ctx context.Context, tx domain.SubmissionTx) error {
			return tx.Insert(ctx, dup)
		})
		assert.Equal(t, domain.ReasonDuplicateSubmission, errors.Convert(err).Reason)
	})
}

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	require.NoError(t, migrations.Apply(ctx, dsn))

	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
