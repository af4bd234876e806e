// Package cleanupcmder provides the cleanup command removing expired
// profile entries of every user.
package cleanupcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/swarm/cmd/swarm/stack"
	"github.com/papercomputeco/swarm/pkg/cliui"
	"github.com/papercomputeco/swarm/pkg/config"
	"github.com/papercomputeco/swarm/pkg/logger"
)

const cleanupLongDesc string = `Remove expired profile entries of every user.

Runs one sweep against the configured store and records it in the default
user's audit log. A running server sweeps on its own when cleanup.schedule
is set.

Examples:
  swarm cleanup
  swarm cleanup --postgres postgres://swarm@localhost/swarm`

const cleanupShortDesc string = "Remove expired profile entries"

var storageFlagKeys = []string{config.FlagSQLite, config.FlagPostgres}

func NewCleanupCmd() *cobra.Command {
	var sqlitePath, postgresDSN string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: cleanupShortDesc,
		Long:  cleanupLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags, err := stack.ReadFlags(cmd)
			if err != nil {
				return err
			}
			v, err := config.InitViper(flags.ConfigDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.StorageFlags, storageFlagKeys)

			log := logger.Nop()
			if flags.Debug {
				log = flags.Logger()
			}

			ctx := cmd.Context()
			s, err := stack.Open(ctx, stack.Options{Viper: v, ConfigDir: flags.ConfigDir, Logger: log})
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			var removed int64
			err = cliui.Step(out, "Removing expired profile entries", func() error {
				admin, err := s.Hub.LocalAdmin(ctx)
				if err != nil {
					return err
				}
				removed, err = s.Hub.Cleanup(ctx, admin)
				return err
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n  %s %s\n\n", cliui.SuccessMark,
				cliui.ValueStyle.Render(fmt.Sprintf("%d expired entries removed", removed)))
			return nil
		},
	}

	config.AddStringFlag(cmd, config.StorageFlags, config.FlagSQLite, &sqlitePath)
	config.AddStringFlag(cmd, config.StorageFlags, config.FlagPostgres, &postgresDSN)

	return cmd
}
