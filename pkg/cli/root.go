/*
Copyright © 2025 The gpupv Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/smart-gpu-pv/gpupv/pkg/config"
	"github.com/smart-gpu-pv/gpupv/pkg/logging"
)

const (
	name           = "gpupv"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// loadStack builds the host stack from the config flag; tests replace it.
var loadStack = func(cmd *cli.Command) (*config.Config, *config.Stack, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.NewStack(cfg), nil
}

// Execute runs the CLI with the process arguments and exits non-zero on
// error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "GPU paravirtualization for Hyper-V virtual machines",
		Version:               fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		EnableShellCompletion: true,
		ShellComplete:         commandLister,
		Description: `gpupv discovers partitionable GPUs on a Hyper-V host and assigns
GPU partitions to virtual machines:

  devices   - list partitionable GPUs with their memory and instance path
  vms       - list virtual machines with their GPU-PV configuration
  check     - report whether the host supports GPU-PV
  configure - assign, resize, or remove a VM's GPU partition
  start     - start a virtual machine
  stop      - turn off a virtual machine`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				Sources: cli.EnvVars(config.EnvConfig),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			slog.Debug("starting",
				slog.String("name", name),
				slog.String("version", version),
				slog.String("commit", commit),
				slog.String("date", date))
			return ctx, nil
		},
		Commands: []*cli.Command{
			devicesCmd(),
			vmsCmd(),
			checkCmd(),
			configureCmd(),
			startCmd(),
			stopCmd(),
		},
	}
}

// commandLister prints the visible subcommands for shell completion.
func commandLister(_ context.Context, cmd *cli.Command) {
	if cmd == nil || cmd.Root() == nil {
		return
	}
	w := outWriter(cmd)
	for _, c := range cmd.Root().Commands {
		if c.Hidden {
			continue
		}
		fmt.Fprintln(w, c.Name)
	}
}

func outWriter(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}

// progressWriter is where configure progress goes: stderr, so stdout stays
// parseable.
func progressWriter(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.ErrWriter != nil {
		return root.ErrWriter
	}
	return os.Stderr
}
