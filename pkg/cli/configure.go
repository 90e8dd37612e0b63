/*
Copyright © 2025 The gpupv Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/smart-gpu-pv/gpupv/pkg/configurator"
	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/serializer"
)

// ConfigureResult is the output of the configure command.
type ConfigureResult struct {
	VM      string               `json:"vm" yaml:"vm"`
	Outcome string               `json:"outcome" yaml:"outcome"`
	Reason  string               `json:"reason,omitempty" yaml:"reason,omitempty"`
	Request configurator.Request `json:"request" yaml:"request"`
	Steps   []string             `json:"steps,omitempty" yaml:"steps,omitempty"`
}

func configureCmd() *cli.Command {
	return &cli.Command{
		Name:  "configure",
		Usage: "Assign, resize, or remove a VM's GPU partition",
		Description: `Applies a GPU-PV configuration to a virtual machine. The VM is turned
off, its current adapter is backed up, and the partition adapter, resource
bounds, cache policy, MMIO space and guest driver files are configured in
order. Any failure after the backup restores the previous configuration.

A --vram below 64 (MB) removes GPU-PV from the VM. Requests above 90% of the
GPU's memory are rejected unless --force is given.

Examples:
  gpupv configure --vm dev --gpu "NVIDIA GeForce RTX 4060" --vram 4096
  gpupv configure --vm dev --vram 0
  gpupv configure --request dev.yaml --dry-run`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "vm",
				Usage: "Virtual machine name",
			},
			&cli.StringFlag{
				Name:  "gpu",
				Usage: "GPU friendly name or instance path (see: gpupv devices)",
			},
			&cli.IntFlag{
				Name:  "vram",
				Usage: "Partition memory in MB; below 64 disables GPU-PV",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Allow more than 90% of the GPU's memory",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the plan and steps without changing the VM",
			},
			&cli.StringFlag{
				Name:    "request",
				Aliases: []string{"f"},
				Usage:   "Read the request from a JSON or YAML file instead of flags",
			},
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := parseOutputFormat(cmd); err != nil {
				return err
			}
			in, err := applyRequestFromCmd(cmd)
			if err != nil {
				return err
			}
			_, stack, err := loadStack(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, defaults.CLIConfigureTimeout)
			defer cancel()

			if cmd.Bool("dry-run") {
				plan, err := configurator.MakePlan(ctx, stack.Engine, *in)
				if err != nil {
					return err
				}
				res := resultOf(plan)
				if plan.NoOp {
					res.Outcome = "noop"
				} else {
					res.Outcome = "planned"
					res.Steps = stack.Orchestrator.Steps(plan.Request)
				}
				return writeOutput(ctx, cmd, res)
			}

			w := progressWriter(cmd)
			plan, err := stack.Orchestrator.Apply(ctx, stack.Engine, *in, func(line string) {
				fmt.Fprintln(w, line)
			})
			if err != nil {
				return err
			}
			return writeOutput(ctx, cmd, resultOf(plan))
		},
	}
}

func resultOf(plan *configurator.Plan) ConfigureResult {
	res := ConfigureResult{
		VM:      plan.Request.VMName,
		Reason:  plan.Reason,
		Request: plan.Request,
	}
	switch {
	case plan.NoOp:
		res.Outcome = "noop"
	case plan.Request.Enables():
		res.Outcome = "configured"
	default:
		res.Outcome = "disabled"
	}
	return res
}

// applyRequestFromCmd reads the request file when given, otherwise the
// flags.
func applyRequestFromCmd(cmd *cli.Command) (*configurator.ApplyRequest, error) {
	if path := cmd.String("request"); path != "" {
		in, err := serializer.FromFile[configurator.ApplyRequest](path)
		if err != nil {
			return nil, gpuerrors.Wrap(gpuerrors.ErrCodeInvalidRequest, "invalid request file", err)
		}
		if cmd.IsSet("force") {
			in.Force = cmd.Bool("force")
		}
		return in, nil
	}

	vm := cmd.String("vm")
	if vm == "" {
		return nil, gpuerrors.New(gpuerrors.ErrCodeInvalidRequest, "--vm or --request is required")
	}
	if !cmd.IsSet("vram") {
		return nil, gpuerrors.New(gpuerrors.ErrCodeInvalidRequest, "--vram is required")
	}
	vram := cmd.Int("vram")
	if vram < 0 {
		return nil, gpuerrors.New(gpuerrors.ErrCodeInvalidRequest,
			fmt.Sprintf("--vram cannot be negative, got %d", vram))
	}
	return &configurator.ApplyRequest{
		VMName: vm,
		GPU:    cmd.String("gpu"),
		VRAMMB: uint64(vram),
		Force:  cmd.Bool("force"),
	}, nil
}
