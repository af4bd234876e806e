// Package servecmder provides the serve command running the API and MCP
// server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/swarm/api"
	"github.com/papercomputeco/swarm/api/mcp"
	"github.com/papercomputeco/swarm/cmd/swarm/stack"
	"github.com/papercomputeco/swarm/pkg/config"
	"github.com/papercomputeco/swarm/pkg/metrics"
	"github.com/papercomputeco/swarm/pkg/sweeper"
)

type ServeCommander struct {
	flags stack.Flags

	listen             string
	sqlitePath         string
	postgresDSN        string
	adminToken         string
	embeddingProvider  string
	embeddingTarget    string
	embeddingModel     string
	enrichWorkers      uint
	reflectionProvider string
	reflectionModel    string
	cleanupSchedule    string

	viper  *viper.Viper
	logger *slog.Logger
}

const serveLongDesc string = `Run the swarm hub.

Serves the HTTP API under /api, Prometheus metrics under /metrics and the
MCP endpoint under /mcp. Memories are embedded in the background when an
embedding provider is configured, and expired profile entries are swept on
the cleanup schedule when one is set.

Configuration precedence: flags, then SWARM_* environment variables, then
config.toml, then defaults.

Examples:
  swarm serve
  swarm serve --listen :8080 --embedding-provider ollama --embedding-model nomic-embed-text
  swarm serve --postgres postgres://swarm@localhost/swarm --cleanup-schedule "0 * * * *"`

const serveShortDesc string = "Run the API and MCP server"

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagAdminToken,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEnrichWorkers,
	config.FlagReflectionProv,
	config.FlagReflectionModel,
	config.FlagCleanupSchedule,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			flags, err := stack.ReadFlags(cmd)
			if err != nil {
				return err
			}
			cmder.flags = flags

			v, err := config.InitViper(cmder.flags.ConfigDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, closeLog, err := cmder.flags.ServerLogger()
			if err != nil {
				return err
			}
			defer closeLog()

			cmder.logger = log
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAdminToken, &cmder.adminToken)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEnrichWorkers, &cmder.enrichWorkers)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagReflectionProv, &cmder.reflectionProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagReflectionModel, &cmder.reflectionModel)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagCleanupSchedule, &cmder.cleanupSchedule)

	return cmd
}

func (c *ServeCommander) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	collectors := metrics.New()

	s, err := stack.Open(ctx, stack.Options{
		Viper:     c.viper,
		ConfigDir: c.flags.ConfigDir,
		Logger:    c.logger,
		Metrics:   collectors,
		Serving:   true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			c.logger.Error("closing hub", "error", err)
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Hub:    s.Hub,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: c.viper.GetString("api.listen"),
		Metrics:    collectors.Handler(),
		MCP:        mcpServer.Handler(),
	}, s.Hub, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if schedule := c.viper.GetString("cleanup.schedule"); schedule != "" {
		sw, err := sweeper.New(sweeper.Config{
			Schedule: schedule,
			Cleaner:  s.Hub,
			Logger:   c.logger,
		})
		if err != nil {
			return err
		}
		c.logger.Info("expired entry sweeper scheduled", "schedule", schedule, "next", sw.Next(time.Now()))
		go sw.Run(ctx)
	}

	config.Watch(c.viper, c.logger)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	if err := apiServer.Shutdown(); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
