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

//go:build windows

package hyperv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yusufpapurcu/wmi"
	"golang.org/x/sys/windows/registry"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
)

const (
	cimNamespace       = `root\cimv2`
	gen2SubType        = "Microsoft:Hyper-V:SubType:2"
	hostedVMCaption    = "Virtual"
	vmGUIDLength       = 36
	vmBracedGUIDLength = 38
)

type msvmPartitionableGpu struct {
	Name      string
	TotalVRAM uint64
}

type win32VideoController struct {
	PNPDeviceID             string
	InstalledDisplayDrivers string
}

type msvmComputerSystem struct {
	Name         string
	ElementName  string
	Caption      string
	EnabledState uint16
}

type msvmSystemSettings struct {
	InstanceID           string
	VirtualSystemSubType string
}

type msvmGpuPartitionSettings struct {
	InstancePath     string
	HostResource     []string
	MaxPartitionVRAM uint64
}

// NativeInventory reads GPUs and VMs straight from WMI and the registry.
// Each call opens and closes its own WMI session.
type NativeInventory struct {
	client *wmi.Client
}

// NewNativeInventory returns an Inventory backed by WMI.
func NewNativeInventory() *NativeInventory {
	return &NativeInventory{client: &wmi.Client{AllowMissingFields: true}}
}

func (n *NativeInventory) session() (*wmi.SWbemServices, error) {
	s, err := wmi.InitializeSWbemServices(n.client)
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, "failed to open WMI session", err)
	}
	return s, nil
}

func query[T any](s *wmi.SWbemServices, namespace, q string) ([]T, error) {
	var dst []T
	if err := s.Query(q, &dst, nil, namespace); err != nil {
		return nil, gpuerrors.WrapWithContext(gpuerrors.ErrCodeProviderUnavailable, "WMI query failed", err,
			map[string]any{"query": q})
	}
	return dst, nil
}

// DeviceSources implements Inventory.
func (n *NativeInventory) DeviceSources(ctx context.Context) (*DeviceSources, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := n.session()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			slog.Debug("failed to close WMI session", slog.String("error", cerr.Error()))
		}
	}()

	pgs, err := query[msvmPartitionableGpu](s, virtualizationNamespace,
		"SELECT Name, TotalVRAM FROM Msvm_PartitionableGpu")
	if err != nil {
		return nil, err
	}
	gpus := make([]PartitionableGPU, 0, len(pgs))
	for _, g := range pgs {
		if g.Name == "" {
			continue
		}
		gpus = append(gpus, PartitionableGPU{InstancePath: g.Name, TotalVRAM: g.TotalVRAM})
	}

	adapters, err := registryAdapters()
	if err != nil {
		return nil, err
	}

	vcs, err := query[win32VideoController](s, cimNamespace,
		"SELECT PNPDeviceID, InstalledDisplayDrivers FROM Win32_VideoController")
	if err != nil {
		return nil, err
	}
	drivers := make(map[string]string, len(vcs))
	for _, vc := range vcs {
		if vc.PNPDeviceID != "" {
			drivers[vc.PNPDeviceID] = DriverDirectory(vc.InstalledDisplayDrivers)
		}
	}

	return &DeviceSources{Partitionable: gpus, Adapters: adapters, Drivers: drivers}, nil
}

// VirtualMachines implements Inventory.
func (n *NativeInventory) VirtualMachines(ctx context.Context) ([]VirtualMachine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := n.session()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			slog.Debug("failed to close WMI session", slog.String("error", cerr.Error()))
		}
	}()

	systems, err := query[msvmComputerSystem](s, virtualizationNamespace,
		"SELECT Name, ElementName, Caption, EnabledState FROM Msvm_ComputerSystem")
	if err != nil {
		return nil, err
	}

	vms := make([]VirtualMachine, 0, len(systems))
	for _, cs := range systems {
		if l := len(cs.Name); l != vmGUIDLength && l != vmBracedGUIDLength && !strings.Contains(cs.Caption, hostedVMCaption) {
			continue
		}
		vm := VirtualMachine{
			Name:      cs.ElementName,
			State:     StateFromEnabledState(cs.EnabledState),
			GPUStatus: GPUStatusOff,
		}

		settings, err := query[msvmSystemSettings](s, virtualizationNamespace, fmt.Sprintf(
			`ASSOCIATORS OF {Msvm_ComputerSystem.CreationClassName="Msvm_ComputerSystem",Name="%s"} `+
				`WHERE AssocClass=Msvm_SettingsDefineState ResultClass=Msvm_VirtualSystemSettingData`, wqlEscape(cs.Name)))
		if err != nil || len(settings) == 0 {
			slog.Debug("no settings for VM", slog.String("vm", vm.Name))
			vms = append(vms, vm)
			continue
		}
		if st := settings[0].VirtualSystemSubType; st != "" && st != gen2SubType {
			vm.GPUStatus = GPUStatusNotSupported
			vms = append(vms, vm)
			continue
		}

		parts, err := query[msvmGpuPartitionSettings](s, virtualizationNamespace, fmt.Sprintf(
			`ASSOCIATORS OF {Msvm_VirtualSystemSettingData.InstanceID="%s"} `+
				`WHERE AssocClass=Msvm_VirtualSystemSettingDataComponent ResultClass=Msvm_GpuPartitionSettingData`,
			wqlEscape(settings[0].InstanceID)))
		if err == nil && len(parts) > 0 {
			vm.GPUStatus = GPUStatusOn
			vm.VRAM = parts[0].MaxPartitionVRAM
			vm.InstancePath = parts[0].InstancePath
			if vm.InstancePath == "" && len(parts[0].HostResource) > 0 {
				vm.InstancePath = parts[0].HostResource[0]
			}
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

func wqlEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// registryAdapters reads adapter names, hardware ids and memory sizes from
// the display class registry entries.
func registryAdapters() ([]VideoAdapter, error) {
	class, err := registry.OpenKey(registry.LOCAL_MACHINE, displayClassKey, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, "failed to open display class key", err)
	}
	defer class.Close()

	names, err := class.ReadSubKeyNames(-1)
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, "failed to list display class entries", err)
	}

	var adapters []VideoAdapter
	for _, name := range names {
		if len(name) != 4 || strings.Trim(name, "0123456789") != "" {
			continue
		}
		a, ok := readClassEntry(displayClassKey + `\` + name)
		if ok && a.DedicatedMemory > 0 {
			adapters = append(adapters, a)
		}
	}
	return adapters, nil
}

func readClassEntry(path string) (VideoAdapter, bool) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
	if err != nil {
		return VideoAdapter{}, false
	}
	defer k.Close()

	desc, _, _ := k.GetStringValue("DriverDesc")
	matching, _, _ := k.GetStringValue("MatchingDeviceId")
	return adapterFromClassEntry(desc, matching,
		registryNumber(k, "HardwareInformation.qwMemorySize"),
		registryNumber(k, "HardwareInformation.MemorySize")), true
}

// registryNumber reads a value stored either as an integer or as a
// little-endian binary blob.
func registryNumber(k registry.Key, name string) uint64 {
	if v, _, err := k.GetIntegerValue(name); err == nil {
		return v
	}
	if b, _, err := k.GetBinaryValue(name); err == nil {
		return littleEndian(b)
	}
	return 0
}
