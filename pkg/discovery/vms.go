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

package discovery

import (
	"context"
	"log/slog"
	"strings"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// VirtualMachines lists the host's VMs from the first strategy whose
// provider answers. GPU names are resolved against the device catalog only
// when some VM has GPU-PV enabled. Provider failures yield an empty list.
func (e *Engine) VirtualMachines(ctx context.Context) []VMRecord {
	vms, err := e.listVMs(ctx)
	if err != nil {
		return []VMRecord{}
	}
	return vms
}

// LookupVM finds a VM by name, ignoring case. It returns NOT_FOUND when a
// provider answered without the VM and PROVIDER_UNAVAILABLE when none
// answered.
func (e *Engine) LookupVM(ctx context.Context, name string) (VMRecord, error) {
	vms, err := e.listVMs(ctx)
	if err != nil {
		return VMRecord{}, err
	}
	vm, ok := FindVM(vms, name)
	if !ok {
		return VMRecord{}, gpuerrors.NewWithContext(gpuerrors.ErrCodeNotFound, "virtual machine not found",
			map[string]any{"vm": name})
	}
	return vm, nil
}

func (e *Engine) listVMs(ctx context.Context) ([]VMRecord, error) {
	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		vms, err := s.Source.VirtualMachines(ctx)
		if err != nil {
			strategyTotal.WithLabelValues(s.Name+"-vms", "error").Inc()
			slog.Warn("VM listing strategy failed",
				slog.String("strategy", s.Name),
				slog.String("error", err.Error()))
			continue
		}
		strategyTotal.WithLabelValues(s.Name+"-vms", "success").Inc()
		return e.catalogVMs(ctx, vms), nil
	}

	slog.Warn("no VM listing strategy succeeded")
	return nil, gpuerrors.New(gpuerrors.ErrCodeProviderUnavailable, "no provider could list virtual machines")
}

func (e *Engine) catalogVMs(ctx context.Context, vms []hyperv.VirtualMachine) []VMRecord {
	var devices []DeviceRecord
	for _, vm := range vms {
		if vm.GPUStatus == hyperv.GPUStatusOn {
			devices = e.Discover(ctx)
			break
		}
	}

	records := make([]VMRecord, 0, len(vms))
	for _, vm := range vms {
		rec := VMRecord{VirtualMachine: vm}
		if vm.GPUStatus == hyperv.GPUStatusOn && vm.InstancePath != "" {
			if d, ok := FindByInstancePath(devices, vm.InstancePath); ok {
				rec.GPUName = d.Name
			}
		}
		rec.Display = VMDisplay(vm, rec.GPUName)
		records = append(records, rec)
	}
	return records
}

// FindVM returns the VM record with the given name. Hyper-V VM names
// compare case-insensitively.
func FindVM(vms []VMRecord, name string) (VMRecord, bool) {
	for _, vm := range vms {
		if strings.EqualFold(vm.Name, name) {
			return vm, true
		}
	}
	return VMRecord{}, false
}
