package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/quizgrade/internal/infra/postgres/migrations"
	"github.com/victornm/quizgrade/internal/server"
)

type runner interface {
	Start() error
	Shutdown()
}

func newServeCmd(f *rootFlags) *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(f)
			if err != nil {
				return err
			}

			if migrateFirst && c.Postgres.DSN != "" {
				if err := migrations.Apply(cmd.Context(), c.Postgres.DSN); err != nil {
					return err
				}
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)
			defer signal.Stop(shutdown)

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			return serve(s, shutdown)
		},
	}

	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply database migrations before serving")
	return cmd
}

// serve runs s until a signal arrives or s stops serving on its own, and
// shuts it down in both cases.
func serve(s runner, shutdown <-chan os.Signal) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.Start()
	}()

	var err error
	select {
	case sig := <-shutdown:
		slog.Info("serve: shutting down", "signal", sig.String())
	case err = <-errc:
		if err == nil {
			err = fmt.Errorf("server stopped unexpectedly")
		}
		slog.Error("serve: server stopped", "error", err)
	}

	s.Shutdown()
	return err
}
