package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/animus-labs/flowq/internal/app"
	"github.com/animus-labs/flowq/internal/platform/env"
	"github.com/animus-labs/flowq/internal/platform/logging"
)

// configError marks failures that exit with status 2.
type configError struct {
	err error
}

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

// cli carries what every subcommand shares once the root has resolved its
// configuration.
type cli struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	cfg    app.Config
	logger *slog.Logger
	logs   io.Closer
}

var persistentFlags = []struct {
	name, key, usage string
}{
	{"log-level", "log.level", "log level (debug, info, warn, error)"},
	{"log-format", "log.format", "log format (json, text)"},
	{"database-url", "database.url", "postgres connection url; in-memory stores are used when empty"},
	{"minio-endpoint", "minio.endpoint", "object store endpoint for results; in-memory results are used when empty"},
	{"id-format", "id.format", "message id format (uuid, ulid)"},
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "flowq",
		Short:         "Compose, run and inspect pipelines and groups of task messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to a YAML config file (defaults to $FLOWQ_CONFIG)")
	for _, f := range persistentFlags {
		flags.String(f.name, "", f.usage)
	}

	root.AddCommand(
		newPlanCommand(c),
		newSimulateCommand(c),
		newStatesCommand(c),
		newStateCommand(c),
		newGroupsCommand(c),
		newCancelCommand(c),
		newPurgeCommand(c),
		newResultsCommand(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	src, err := env.Load(c.configPath)
	if err != nil {
		return configError{err}
	}
	for _, f := range persistentFlags {
		if err := src.BindFlag(f.key, cmd.Root().PersistentFlags().Lookup(f.name)); err != nil {
			return configError{err}
		}
	}
	cfg, err := app.ConfigFromEnv(src)
	if err != nil {
		return configError{err}
	}
	logger, closer, err := logging.New(cfg.Log, c.stderr)
	if err != nil {
		return configError{err}
	}
	c.cfg, c.logger, c.logs = cfg, logger, closer
	return nil
}

// open assembles the runtime for commands that touch stores.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, c.logger)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := newRootCommand(c)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.logs != nil {
		_ = c.logs.Close()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, "error:", err)
	var cfgErr configError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
