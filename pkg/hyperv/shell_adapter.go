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

package hyperv

import (
	"context"
	"fmt"
	"strings"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/powershell"
)

// GPUAdapter returns the GPU partition adapter assigned to the VM, or nil
// when the VM has none.
func (h *ShellHost) GPUAdapter(ctx context.Context, vm string) (*AdapterSettings, error) {
	script := fmt.Sprintf("ConvertTo-Json -Compress -InputObject @(Get-VMGpuPartitionAdapter -VMName %s -ErrorAction SilentlyContinue | "+
		"Select-Object InstancePath, MinPartitionVRAM, MaxPartitionVRAM)", powershell.Quote(vm))
	res, err := h.run(ctx, "read GPU partition adapter", script)
	if err != nil {
		return nil, err
	}
	items, err := decodeList[AdapterSettings](res.Stdout)
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeInternal, "unexpected GPU partition adapter output", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// GuestControlledCacheTypes reads the VM's guest controlled cache types flag.
func (h *ShellHost) GuestControlledCacheTypes(ctx context.Context, vm string) (bool, error) {
	res, err := h.run(ctx, "read guest controlled cache types",
		fmt.Sprintf("(Get-VM -VMName %s -ErrorAction Stop).GuestControlledCacheTypes", powershell.Quote(vm)))
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(res.Stdout), "true"), nil
}

// RemoveGPUAdapter removes any GPU partition adapter from the VM. Removing
// from a VM without an adapter succeeds.
func (h *ShellHost) RemoveGPUAdapter(ctx context.Context, vm string) error {
	_, err := h.run(ctx, "remove GPU partition adapter",
		fmt.Sprintf("Remove-VMGpuPartitionAdapter -VMName %s -ErrorAction SilentlyContinue", powershell.Quote(vm)))
	return err
}

// AddGPUAdapter attaches the GPU at instancePath to the VM.
func (h *ShellHost) AddGPUAdapter(ctx context.Context, vm, instancePath string) error {
	_, err := h.run(ctx, "add GPU partition adapter",
		fmt.Sprintf("Add-VMGpuPartitionAdapter -VMName %s -InstancePath %s",
			powershell.Quote(vm), powershell.Quote(instancePath)))
	return err
}

// SetGPUResource sets the min, max and optimal partition values of one
// resource channel.
func (h *ShellHost) SetGPUResource(ctx context.Context, vm string, ch Channel, b Bounds) error {
	script := fmt.Sprintf("Set-VMGpuPartitionAdapter -VMName %[1]s -MinPartition%[2]s %[3]d -MaxPartition%[2]s %[4]d -OptimalPartition%[2]s %[5]d",
		powershell.Quote(vm), ch, b.Min, b.Max, b.Optimal)
	_, err := h.run(ctx, "set GPU partition "+string(ch), script)
	return err
}

// SetGuestControlledCacheTypes sets the VM's guest controlled cache types flag.
func (h *ShellHost) SetGuestControlledCacheTypes(ctx context.Context, vm string, enabled bool) error {
	_, err := h.run(ctx, "set guest controlled cache types",
		fmt.Sprintf("Set-VM -VMName %s -GuestControlledCacheTypes %s", powershell.Quote(vm), psBool(enabled)))
	return err
}

// SetMMIOSpace sets the low and high memory mapped IO space of the VM.
// Sizes use PowerShell's size literal form, e.g. 1GB.
func (h *ShellHost) SetMMIOSpace(ctx context.Context, vm, low, high string) error {
	if _, err := h.run(ctx, "set low MMIO space",
		fmt.Sprintf("Set-VM -VMName %s -LowMemoryMappedIoSpace %s", powershell.Quote(vm), low)); err != nil {
		return err
	}
	_, err := h.run(ctx, "set high MMIO space",
		fmt.Sprintf("Set-VM -VMName %s -HighMemoryMappedIoSpace %s", powershell.Quote(vm), high))
	return err
}
