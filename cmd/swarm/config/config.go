// Package configcmder provides the config command for managing persistent
// swarm configuration stored in the .swarm/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent swarm configuration.

Configuration is stored as config.toml in the .swarm/ directory and provides
default values for command flags. CLI flags and SWARM_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path, storage.postgres_dsn,
  api.listen,
  auth.admin_token, auth.jwt_secret, auth.jwt_ttl,
  embedding.provider, embedding.target, embedding.model, embedding.api_key,
  embedding.timeout,
  enrich.workers, enrich.queue_size,
  reflection.provider, reflection.target, reflection.model, reflection.api_key,
  cleanup.schedule,
  events.kafka_brokers, events.kafka_topic

Use subcommands to get, set, or list configuration values:
  swarm config set <key> <value>    Set a configuration value
  swarm config get <key>            Get a configuration value
  swarm config list                 List all configuration values

Examples:
  swarm config set embedding.provider ollama
  swarm config set cleanup.schedule "0 * * * *"
  swarm config get api.listen
  swarm config list`

const configShortDesc string = "Manage persistent swarm configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
