package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/quiz"
	"github.com/victornm/quizgrade/internal/server"
)

type quizSaver interface {
	SaveQuiz(ctx context.Context, q domain.Quiz) error
}

type quizInvalidator interface {
	Invalidate(ctx context.Context, quizIDs ...string) error
}

func newQuizCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Manage quiz definitions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Insert or replace the quizzes defined in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizzes, err := quiz.ReadFile(args[0])
			if err != nil {
				return err
			}

			c, err := loadConfig(f)
			if err != nil {
				return err
			}

			if c.Postgres.DSN == "" {
				return fmt.Errorf("postgres dsn not configured")
			}

			db, err := server.Connect(cmd.Context(), c.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			rc, err := server.ConnectRedis(cmd.Context(), c.Redis.Cache.Addrs, c.Redis.Cache.Pass)
			if err != nil {
				return fmt.Errorf("connect redis cache: %w", err)
			}
			defer rc.Close()

			cache := quiz.NewCache(quiz.CacheConfig{
				Redis:  rc,
				Prefix: c.Redis.Cache.Prefix,
			})

			return importQuizzes(cmd.Context(), quiz.NewPostgresLoader(db), cache, quizzes)
		},
	})

	return cmd
}

// importQuizzes stores every quiz, then drops their cached copies so running
// servers pick up the new definitions.
func importQuizzes(ctx context.Context, saver quizSaver, cache quizInvalidator, quizzes []domain.Quiz) error {
	ids := make([]string, 0, len(quizzes))
	for _, q := range quizzes {
		if err := saver.SaveQuiz(ctx, q); err != nil {
			return err
		}
		ids = append(ids, q.ID)
		slog.InfoContext(ctx, "quiz: imported", "quiz_id", q.ID, "questions", len(q.Questions))
	}

	return cache.Invalidate(ctx, ids...)
}
