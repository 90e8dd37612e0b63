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

package configurator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"github.com/smart-gpu-pv/gpupv/pkg/discovery"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// Catalog lists the host's devices and VMs.
type Catalog interface {
	Discover(ctx context.Context) []discovery.DeviceRecord
	VirtualMachines(ctx context.Context) []discovery.VMRecord
	LookupVM(ctx context.Context, name string) (discovery.VMRecord, error)
}

// ApplyRequest is a configuration request as a user states it.
type ApplyRequest struct {
	VMName string `json:"vm" yaml:"vm"`

	// GPU is the device's friendly name or instance path. It is ignored
	// when disabling.
	GPU string `json:"gpu,omitempty" yaml:"gpu,omitempty"`

	VRAMMB uint64 `json:"vramMB" yaml:"vramMB"`

	// Force allows requests above the device's VRAM cap.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`
}

// Plan is a validated request and whether it would change anything.
type Plan struct {
	Request Request `json:"request" yaml:"request"`
	NoOp    bool    `json:"noop,omitempty" yaml:"noop,omitempty"`
	Reason  string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// MakePlan resolves an ApplyRequest against the catalog.
func MakePlan(ctx context.Context, catalog Catalog, in ApplyRequest) (*Plan, error) {
	if in.VMName == "" {
		return nil, gpuerrors.New(gpuerrors.ErrCodeInvalidRequest, "VM name is required")
	}

	vm, err := catalog.LookupVM(ctx, in.VMName)
	if err != nil {
		return nil, err
	}
	if vm.GPUStatus == hyperv.GPUStatusNotSupported {
		return nil, gpuerrors.NewWithContext(gpuerrors.ErrCodeInvalidRequest, "virtual machine does not support GPU-PV (generation 2 required)",
			map[string]any{"vm": in.VMName})
	}

	req := Request{VMName: in.VMName, VRAM: in.VRAMMB * defaults.MiB}

	if !req.Enables() {
		if vm.GPUStatus != hyperv.GPUStatusOn {
			return &Plan{Request: req, NoOp: true, Reason: "GPU-PV is not enabled on " + in.VMName}, nil
		}
		return &Plan{Request: req}, nil
	}

	if in.GPU == "" {
		return nil, gpuerrors.New(gpuerrors.ErrCodeInvalidRequest, "GPU is required to enable GPU-PV")
	}
	devices := catalog.Discover(ctx)
	dev, ok := discovery.FindByName(devices, in.GPU)
	if !ok {
		dev, ok = discovery.FindByInstancePath(devices, in.GPU)
	}
	if !ok {
		return nil, gpuerrors.NewWithContext(gpuerrors.ErrCodeNotFound, "GPU not found",
			map[string]any{"gpu": in.GPU})
	}
	req.GPUName = dev.Name
	req.InstancePath = dev.InstancePath

	limit := uint64(float64(dev.VRAM) * defaults.MaxVRAMRatio)
	if req.VRAM > limit {
		if !in.Force {
			return nil, gpuerrors.NewWithContext(gpuerrors.ErrCodeInvalidRequest,
				fmt.Sprintf("requested VRAM %s exceeds %.0f%% of the GPU's %s", discovery.FormatVRAM(req.VRAM),
					defaults.MaxVRAMRatio*100, discovery.FormatVRAM(dev.VRAM)),
				map[string]any{"vm": in.VMName, "gpu": dev.Name, "limit": limit})
		}
		slog.Warn("requested VRAM exceeds cap, forced",
			slog.String("vm", in.VMName),
			slog.Uint64("vram", req.VRAM),
			slog.Uint64("limit", limit))
	}

	if vm.GPUStatus == hyperv.GPUStatusOn && discovery.SameInstancePath(vm.InstancePath, dev.InstancePath) &&
		absDiff(vm.VRAM, req.VRAM) < defaults.SameVRAMTolerance {
		return &Plan{Request: req, NoOp: true,
			Reason: fmt.Sprintf("%s already uses %s with %s", in.VMName, dev.Name, discovery.FormatVRAM(vm.VRAM))}, nil
	}
	return &Plan{Request: req}, nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Apply plans the request and configures the VM unless the plan is a no-op.
func (o *Orchestrator) Apply(ctx context.Context, catalog Catalog, in ApplyRequest, sink Sink) (*Plan, error) {
	plan, err := MakePlan(ctx, catalog, in)
	if err != nil {
		return nil, err
	}
	if plan.NoOp {
		emitter(sink)("Nothing to do: " + plan.Reason)
		configureTotal.WithLabelValues(outcomeNoop).Inc()
		return plan, nil
	}
	return plan, o.Configure(ctx, plan.Request, sink)
}
