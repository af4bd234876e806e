// Package agentcmder provides the agent command managing agent credentials
// of the default user directly against the configured store.
package agentcmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/swarm/cmd/swarm/stack"
	"github.com/papercomputeco/swarm/pkg/agents"
	"github.com/papercomputeco/swarm/pkg/cliui"
	"github.com/papercomputeco/swarm/pkg/config"
	"github.com/papercomputeco/swarm/pkg/logger"
)

const agentLongDesc string = `Manage agents of the default user.

Agents authenticate with an API key issued once at creation. Keys cannot be
shown again; rotate a key by deleting and recreating the agent.

Examples:
  swarm agent create planner --name "Planner" --permissions read,write
  swarm agent list
  swarm agent delete planner`

const agentShortDesc string = "Manage agents and their API keys"

type agentCommander struct {
	flags       stack.Flags
	sqlitePath  string
	postgresDSN string
	viper       *viper.Viper
	out         io.Writer
}

var storageFlagKeys = []string{config.FlagSQLite, config.FlagPostgres}

func NewAgentCmd() *cobra.Command {
	cmder := &agentCommander{}

	cmd := &cobra.Command{
		Use:   "agent",
		Short: agentShortDesc,
		Long:  agentLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags, err := stack.ReadFlags(cmd)
			if err != nil {
				return err
			}
			cmder.flags = flags
			cmder.out = cmd.OutOrStdout()

			v, err := config.InitViper(cmder.flags.ConfigDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.StorageFlags, storageFlagKeys)
			cmder.viper = v
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cmder.sqlitePath, config.StorageFlags[config.FlagSQLite].Name,
		config.StorageFlags[config.FlagSQLite].Shorthand, "", config.StorageFlags[config.FlagSQLite].Description)
	cmd.PersistentFlags().StringVar(&cmder.postgresDSN, config.StorageFlags[config.FlagPostgres].Name,
		"", config.StorageFlags[config.FlagPostgres].Description)

	cmd.AddCommand(cmder.newCreateCmd())
	cmd.AddCommand(cmder.newListCmd())
	cmd.AddCommand(cmder.newDeleteCmd())

	return cmd
}

// withStack opens the store quietly, runs fn and closes the store.
func (c *agentCommander) withStack(ctx context.Context, fn func(s *stack.Stack) error) error {
	log := logger.Nop()
	if c.flags.Debug {
		log = c.flags.Logger()
	}

	s, err := stack.Open(ctx, stack.Options{Viper: c.viper, ConfigDir: c.flags.ConfigDir, Logger: log})
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (c *agentCommander) newCreateCmd() *cobra.Command {
	var (
		name        string
		permissions string
	)

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create an agent and print its API key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := agents.CreateInput{Name: name}
			if len(args) == 1 {
				in.ID = args[0]
			}
			for _, p := range strings.Split(permissions, ",") {
				if p = strings.TrimSpace(p); p != "" {
					in.Permissions = append(in.Permissions, p)
				}
			}

			return c.withStack(cmd.Context(), func(s *stack.Stack) error {
				admin, err := s.Hub.LocalAdmin(cmd.Context())
				if err != nil {
					return err
				}
				created, err := s.Hub.CreateAgent(cmd.Context(), admin, in)
				if err != nil {
					return err
				}

				fmt.Fprintf(c.out, "\n  %s Created agent %s\n\n", cliui.SuccessMark, cliui.KeyStyle.Render(created.ID))
				cliui.KeyValues(c.out, [][2]string{
					{"api key", created.APIKey},
					{"permissions", strings.Join(created.Permissions, ",")},
				})
				fmt.Fprintf(c.out, "\n  %s\n\n", cliui.WarnStyle.Render("Store the key now, it cannot be shown again."))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (default: the agent id)")
	cmd.Flags().StringVar(&permissions, "permissions", "read,write", "Comma separated permissions (read, write)")

	return cmd
}

func (c *agentCommander) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStack(cmd.Context(), func(s *stack.Stack) error {
				admin, err := s.Hub.LocalAdmin(cmd.Context())
				if err != nil {
					return err
				}
				list, err := s.Hub.ListAgents(cmd.Context(), admin)
				if err != nil {
					return err
				}

				if len(list) == 0 {
					fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("No agents yet. Create one with: swarm agent create <id>"))
					return nil
				}

				rows := make([][2]string, 0, len(list))
				for _, a := range list {
					rows = append(rows, [2]string{a.ID, fmt.Sprintf("%s  [%s]  %s",
						a.Name,
						strings.Join(a.Permissions, ","),
						cliui.DimStyle.Render(a.CreatedAt.Format("2006-01-02 15:04")),
					)})
				}
				fmt.Fprintln(c.out)
				cliui.KeyValues(c.out, rows)
				fmt.Fprintln(c.out)
				return nil
			})
		},
	}
}

func (c *agentCommander) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an agent and revoke its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStack(cmd.Context(), func(s *stack.Stack) error {
				admin, err := s.Hub.LocalAdmin(cmd.Context())
				if err != nil {
					return err
				}
				if err := s.Hub.DeleteAgent(cmd.Context(), admin, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "\n  %s Deleted agent %s\n\n", cliui.SuccessMark, cliui.KeyStyle.Render(args[0]))
				return nil
			})
		},
	}
}
