// Copyright (c) 2025, The gpupv Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"log/slog"

	"github.com/smart-gpu-pv/gpupv/pkg/configurator"
	"github.com/smart-gpu-pv/gpupv/pkg/discovery"
	"github.com/smart-gpu-pv/gpupv/pkg/driverstore"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
	"github.com/smart-gpu-pv/gpupv/pkg/powershell"
)

// Strategy names as they appear in logs and metrics.
const (
	StrategyNative = "native"
	StrategyShell  = "powershell"
)

// Stack is the set of components a command or the daemon works with.
type Stack struct {
	Host         *hyperv.ShellHost
	Engine       *discovery.Engine
	Orchestrator *configurator.Orchestrator
}

// NewStack builds the components described by cfg.
func NewStack(cfg *Config) *Stack {
	return NewStackWithRunner(cfg, powershell.NewExecutor(
		powershell.WithBinary(cfg.PowerShell),
		powershell.WithTimeout(cfg.CommandTimeout),
	))
}

// NewStackWithRunner builds the components around an existing runner.
func NewStackWithRunner(cfg *Config, ps powershell.Runner) *Stack {
	host := hyperv.NewShellHost(ps)

	var strategies []discovery.Strategy
	if cfg.Native {
		strategies = append(strategies, discovery.Strategy{
			Name:          StrategyNative,
			Source:        hyperv.NewNativeInventory(),
			KeepUnmatched: true,
		})
	}
	strategies = append(strategies, discovery.Strategy{
		Name:   StrategyShell,
		Source: host,
	})

	drivers := driverstore.NewPropagator(host,
		driverstore.WithVendor(cfg.Vendor),
		driverstore.WithUnmountRetry(cfg.Unmount.Attempts, cfg.Unmount.Delay),
	)

	slog.Debug("assembled host stack",
		slog.String("powershell", cfg.PowerShell),
		slog.Bool("native", cfg.Native),
		slog.Int("strategies", len(strategies)))

	return &Stack{
		Host:         host,
		Engine:       discovery.NewEngine(strategies...),
		Orchestrator: configurator.NewOrchestrator(host, drivers),
	}
}
