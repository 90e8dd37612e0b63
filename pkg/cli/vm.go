/*
Copyright © 2025 The gpupv Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// powerAction is a start or stop of one VM.
type powerAction func(ctx context.Context, h *hyperv.ShellHost, vm string) error

func startCmd() *cli.Command {
	return powerCmd("start", "Start a virtual machine", "started",
		func(ctx context.Context, h *hyperv.ShellHost, vm string) error {
			return h.StartVM(ctx, vm)
		})
}

func stopCmd() *cli.Command {
	return powerCmd("stop", "Turn off a virtual machine", "stopped",
		func(ctx context.Context, h *hyperv.ShellHost, vm string) error {
			state, err := h.VMState(ctx, vm)
			if err != nil {
				return err
			}
			if state == hyperv.StateOff {
				slog.Info("virtual machine is already off", slog.String("vm", vm))
				return nil
			}
			return h.StopVM(ctx, vm)
		})
}

func powerCmd(cmdName, usage, done string, action powerAction) *cli.Command {
	return &cli.Command{
		Name:  cmdName,
		Usage: usage,
		Flags: []cli.Flag{vmFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			vm := cmd.String("vm")
			_, stack, err := loadStack(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, defaults.CLIQueryTimeout)
			defer cancel()

			exists, err := stack.Host.VMExists(ctx, vm)
			if err != nil {
				return err
			}
			if !exists {
				return gpuerrors.NewWithContext(gpuerrors.ErrCodeNotFound, "virtual machine not found",
					map[string]any{"vm": vm})
			}
			if err := action(ctx, stack.Host, vm); err != nil {
				return err
			}
			fmt.Fprintf(outWriter(cmd), "%s %s\n", vm, done)
			return nil
		},
	}
}
