package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lborres/pulsetrack/adapters/pgx"
)

func newMigrateCommand() *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), pgx.Schema())
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(os.Stdout, cfg)

			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pgx.New(pool, log).Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
