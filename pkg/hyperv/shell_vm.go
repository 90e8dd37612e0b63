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
	"log/slog"
	"strconv"
	"strings"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/powershell"
)

const virtualMachinesScript = `$items = Get-VM | ForEach-Object { ` +
	`$g = $_ | Get-VMGpuPartitionAdapter -ErrorAction SilentlyContinue | Select-Object -First 1; ` +
	`$s = 'Off'; $v = 0; $ip = ''; ` +
	`if ($g) { $s = 'On'; $v = $g.MaxPartitionVRAM; $ip = $g.InstancePath } ` +
	`if ($_.Generation -ne 2) { $s = 'Not supported' } ` +
	`[PSCustomObject]@{ Name = $_.Name; State = $_.State.ToString(); GpuStatus = $s; VRAM = [uint64]$v; InstancePath = $ip } }; ` +
	`ConvertTo-Json -Compress -InputObject @($items)`

// requestedStateOff is the RequestStateChange value that turns a VM off.
const requestedStateOff = 3

type psVirtualMachine struct {
	Name         string
	State        string
	GpuStatus    string
	VRAM         uint64
	InstancePath string
}

// VirtualMachines implements Inventory.
func (h *ShellHost) VirtualMachines(ctx context.Context) ([]VirtualMachine, error) {
	res, err := h.query(ctx, "list virtual machines", virtualMachinesScript)
	if err != nil {
		return nil, err
	}
	items, err := decodeList[psVirtualMachine](res.Stdout)
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, "unexpected Get-VM output", err)
	}

	vms := make([]VirtualMachine, 0, len(items))
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		vm := VirtualMachine{
			Name:      it.Name,
			State:     ParseVMState(it.State),
			GPUStatus: GPUStatus(it.GpuStatus),
		}
		if vm.GPUStatus == GPUStatusOn {
			vm.VRAM = it.VRAM
			vm.InstancePath = it.InstancePath
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

// VMState returns the power state of the named VM.
func (h *ShellHost) VMState(ctx context.Context, vm string) (VMState, error) {
	res, err := h.run(ctx, "read VM state",
		fmt.Sprintf("(Get-VM -Name %s -ErrorAction Stop).State.ToString()", powershell.Quote(vm)))
	if err != nil {
		return StateUnknown, err
	}
	return ParseVMState(res.Stdout), nil
}

// VMExists reports whether a VM with the given name exists.
func (h *ShellHost) VMExists(ctx context.Context, vm string) (bool, error) {
	res, err := h.run(ctx, "look up VM",
		fmt.Sprintf("@(Get-VM -Name %s -ErrorAction SilentlyContinue).Count", powershell.Quote(vm)))
	if err != nil {
		return false, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return false, gpuerrors.Wrap(gpuerrors.ErrCodeInternal, "unexpected VM count output", err)
	}
	return n > 0, nil
}

// StartVM starts the named VM.
func (h *ShellHost) StartVM(ctx context.Context, vm string) error {
	_, err := h.run(ctx, "start VM", "Start-VM -Name "+powershell.Quote(vm))
	return err
}

// StopVM turns the named VM off. Stop-VM is tried first; when it fails the
// state change is requested directly on Msvm_ComputerSystem.
func (h *ShellHost) StopVM(ctx context.Context, vm string) error {
	_, err := h.run(ctx, "stop VM",
		fmt.Sprintf("Stop-VM -Name %s -Force -WarningAction SilentlyContinue", powershell.Quote(vm)))
	if err == nil {
		return nil
	}
	slog.Warn("Stop-VM failed, requesting state change",
		slog.String("vm", vm),
		slog.String("error", err.Error()))

	script := fmt.Sprintf(`$vm = Get-CimInstance -Namespace '%s' -ClassName Msvm_ComputerSystem -Filter ("ElementName=" + "'" + %s.Replace("'", "''") + "'"); `+
		`if (-not $vm) { throw 'virtual machine not found' }; `+
		`(Invoke-CimMethod -InputObject $vm -MethodName RequestStateChange -Arguments @{ RequestedState = [uint16]%d }).ReturnValue`,
		virtualizationNamespace, powershell.Quote(vm), requestedStateOff)
	res, rerr := h.run(ctx, "request VM state change", script)
	if rerr != nil {
		return rerr
	}
	code, perr := strconv.ParseUint(strings.TrimSpace(res.Stdout), 10, 32)
	if perr != nil || !StateChangeAccepted(uint32(code)) {
		return gpuerrors.NewWithContext(gpuerrors.ErrCodeStepFailed, "VM state change rejected",
			map[string]any{"vm": vm, "returnValue": res.Stdout})
	}
	return nil
}

// StateChangeAccepted reports whether a RequestStateChange return value
// means the change completed (0) or was started as a job (4096).
func StateChangeAccepted(code uint32) bool {
	return code == 0 || code == 4096
}

// DisableSecureBoot turns secure boot off in the VM's firmware.
func (h *ShellHost) DisableSecureBoot(ctx context.Context, vm string) error {
	_, err := h.run(ctx, "disable secure boot",
		fmt.Sprintf("Set-VMFirmware -VMName %s -EnableSecureBoot Off", powershell.Quote(vm)))
	return err
}
