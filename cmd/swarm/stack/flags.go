package stack

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/swarm/pkg/logger"
)

// Flags are the persistent flags of the root command.
type Flags struct {
	Debug     bool
	LogFormat logger.Format
	LogFile   string
	ConfigDir string
}

// ReadFlags reads the root flags through cmd. Flags that are not registered,
// as when a subcommand runs on its own in tests, read as zero values.
func ReadFlags(cmd *cobra.Command) (Flags, error) {
	var f Flags
	f.Debug, _ = cmd.Flags().GetBool("debug")
	f.LogFile, _ = cmd.Flags().GetString("log-file")
	f.ConfigDir, _ = cmd.Flags().GetString("config-dir")

	format, _ := cmd.Flags().GetString("log-format")
	var err error
	if f.LogFormat, err = logger.ParseFormat(format); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// Logger builds the console logger in the chosen --log-format.
func (f Flags) Logger() *slog.Logger {
	return logger.New(
		logger.WithDebug(f.Debug),
		logger.WithFormat(f.LogFormat),
		logger.WithSource(f.Debug && f.LogFormat != logger.FormatPretty),
	)
}

// ServerLogger is Logger plus, with --log-file, JSON records appended to
// that file. The returned func closes the file.
func (f Flags) ServerLogger() (*slog.Logger, func() error, error) {
	console := f.Logger()
	if f.LogFile == "" {
		return console, func() error { return nil }, nil
	}

	file, err := logger.OpenFile(f.LogFile)
	if err != nil {
		return nil, nil, err
	}
	records := logger.New(
		logger.WithDebug(f.Debug),
		logger.WithFormat(logger.FormatJSON),
		logger.WithWriters(file),
		logger.WithSource(true),
	)
	console.Debug("appending JSON logs", "path", f.LogFile)
	return logger.Multi(console, records), file.Close, nil
}
