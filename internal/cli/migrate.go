package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/quizgrade/internal/infra/postgres/migrations"
)

func newMigrateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(f)
			if err != nil {
				return err
			}

			if c.Postgres.DSN == "" {
				return fmt.Errorf("postgres dsn not configured")
			}

			return migrations.Apply(cmd.Context(), c.Postgres.DSN)
		},
	}
}
