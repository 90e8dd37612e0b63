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
	winver "github.com/smart-gpu-pv/gpupv/pkg/version"
)

func devicesCmd() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List partitionable GPUs",
		Description: `Lists the host GPUs that can be partitioned, with the dedicated memory
reported by the display adapter and the instance path used to bind a
partition. Native management queries are tried first, then PowerShell.`,
		Flags: []cli.Flag{outputFlag(), formatFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := parseOutputFormat(cmd); err != nil {
				return err
			}
			_, stack, err := loadStack(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, defaults.CLIQueryTimeout)
			defer cancel()

			return writeOutput(ctx, cmd, deviceTable(stack.Engine.Discover(ctx)))
		},
	}
}

func vmsCmd() *cli.Command {
	return &cli.Command{
		Name:  "vms",
		Usage: "List virtual machines and their GPU-PV configuration",
		Flags: []cli.Flag{outputFlag(), formatFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := parseOutputFormat(cmd); err != nil {
				return err
			}
			_, stack, err := loadStack(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, defaults.CLIQueryTimeout)
			defer cancel()

			return writeOutput(ctx, cmd, vmTable(stack.Engine.VirtualMachines(ctx)))
		},
	}
}

// HostCheck is the output of the check command.
type HostCheck struct {
	GPUPVSupported bool   `json:"gpupvSupported" yaml:"gpupvSupported"`
	OSVersion      string `json:"osVersion,omitempty" yaml:"osVersion,omitempty"`
	OSSupported    bool   `json:"osSupported" yaml:"osSupported"`
	Devices        int    `json:"devices" yaml:"devices"`
	VMs            int    `json:"vms" yaml:"vms"`
	PowerShell     string `json:"powershell" yaml:"powershell"`
	Native         bool   `json:"native" yaml:"native"`
}

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Report whether this host supports GPU-PV",
		Flags: []cli.Flag{
			outputFlag(),
			formatFlag(),
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Exit non-zero when GPU-PV is not supported",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := parseOutputFormat(cmd); err != nil {
				return err
			}
			cfg, stack, err := loadStack(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, defaults.CLIQueryTimeout)
			defer cancel()

			res := HostCheck{
				GPUPVSupported: stack.Host.IsGPUPVSupported(ctx),
				Devices:        len(stack.Engine.Discover(ctx)),
				VMs:            len(stack.Engine.VirtualMachines(ctx)),
				PowerShell:     cfg.PowerShell,
				Native:         cfg.Native,
			}
			if v, err := stack.Host.OSVersion(ctx); err != nil {
				slog.Warn("could not read host OS version", slog.String("error", err.Error()))
			} else {
				res.OSVersion = v.String()
				res.OSSupported = v.SupportsGPUPV()
			}
			if err := writeOutput(ctx, cmd, res); err != nil {
				return err
			}
			if cmd.Bool("strict") && !res.GPUPVSupported {
				return fmt.Errorf("GPU-PV is not supported on this host")
			}
			if cmd.Bool("strict") && !res.OSSupported {
				return fmt.Errorf("host OS %q is older than %s", res.OSVersion, winver.MinGPUPVHost)
			}
			return nil
		},
	}
}
