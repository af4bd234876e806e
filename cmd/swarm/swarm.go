// Package swarmcmder is the root of the swarm CLI.
package swarmcmder

import (
	"github.com/spf13/cobra"

	agentcmder "github.com/papercomputeco/swarm/cmd/swarm/agent"
	cleanupcmder "github.com/papercomputeco/swarm/cmd/swarm/cleanup"
	configcmder "github.com/papercomputeco/swarm/cmd/swarm/config"
	servecmder "github.com/papercomputeco/swarm/cmd/swarm/serve"
	versioncmder "github.com/papercomputeco/swarm/cmd/version"
)

const swarmLongDesc string = `Swarm is a shared memory and profile hub for AI agents.

Agents of one user read and write a layered profile and an append-only
memory log over HTTP or MCP, authenticated with per-agent API keys.

Get started:
  swarm serve                    Run the API and MCP server
  swarm agent create my-agent    Issue an API key for an agent
  swarm config list              Show the effective configuration`

const swarmShortDesc string = "Swarm - shared memory for agents"

func NewSwarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "swarm",
		Short:         swarmShortDesc,
		Long:          swarmLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("log-format", "pretty", "Console log format: pretty, json or text")
	cmd.PersistentFlags().String("log-file", "", "Also append JSON log records to this file (serve only)")
	cmd.PersistentFlags().String("config-dir", "", "Override the .swarm configuration directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(agentcmder.NewAgentCmd())
	cmd.AddCommand(cleanupcmder.NewCleanupCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
