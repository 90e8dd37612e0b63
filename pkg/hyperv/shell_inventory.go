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
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"strings"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/hwid"
	"github.com/smart-gpu-pv/gpupv/pkg/version"
)

// displayClassKey is the registry key of the display adapter device class.
const displayClassKey = `SYSTEM\CurrentControlSet\Control\Class\{4d36e968-e325-11ce-bfc1-08002be10318}`

const osVersionScript = `[System.Environment]::OSVersion.Version.ToString()`

const partitionableGPUsScript = `ConvertTo-Json -Compress -InputObject @(Get-VMHostPartitionableGpu | Select-Object Name, TotalVRAM)`

const videoAdaptersScript = `$class = 'HKLM:\` + displayClassKey + `'; ` +
	`$items = Get-ChildItem -Path $class -ErrorAction SilentlyContinue | ` +
	`Where-Object { $_.PSChildName -match '^\d{4}$' } | ForEach-Object { ` +
	`$p = Get-ItemProperty -Path $_.PSPath; ` +
	`[PSCustomObject]@{ ` +
	`Name = $p.DriverDesc; ` +
	`MatchingDeviceId = $p.MatchingDeviceId; ` +
	`QwMemorySize = [uint64]$p.'HardwareInformation.qwMemorySize'; ` +
	`MemorySize = $p.'HardwareInformation.MemorySize' } }; ` +
	`ConvertTo-Json -Compress -InputObject @($items)`

const displayDriversScript = `ConvertTo-Json -Compress -InputObject @(Get-CimInstance -ClassName Win32_VideoController | Select-Object PNPDeviceID, InstalledDisplayDrivers)`

type psPartitionableGPU struct {
	Name      string
	TotalVRAM uint64
}

type psDisplayClassEntry struct {
	Name             string
	MatchingDeviceID string `json:"MatchingDeviceId"`
	QwMemorySize     uint64
	MemorySize       json.RawMessage
}

type psVideoController struct {
	PNPDeviceID             string
	InstalledDisplayDrivers string
}

// DeviceSources implements Inventory.
func (h *ShellHost) DeviceSources(ctx context.Context) (*DeviceSources, error) {
	gpus, err := h.PartitionableGPUs(ctx)
	if err != nil {
		return nil, err
	}

	res, err := h.query(ctx, "read display adapter class", videoAdaptersScript)
	if err != nil {
		return nil, err
	}
	entries, err := decodeList[psDisplayClassEntry](res.Stdout)
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, "unexpected display adapter output", err)
	}
	adapters := make([]VideoAdapter, 0, len(entries))
	for _, e := range entries {
		a := adapterFromClassEntry(e.Name, e.MatchingDeviceID, e.QwMemorySize, legacyMemorySize(e.MemorySize))
		if a.DedicatedMemory == 0 {
			continue
		}
		adapters = append(adapters, a)
	}

	res, err = h.query(ctx, "list video controllers", displayDriversScript)
	if err != nil {
		return nil, err
	}
	controllers, err := decodeList[psVideoController](res.Stdout)
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, "unexpected video controller output", err)
	}
	drivers := make(map[string]string, len(controllers))
	for _, c := range controllers {
		if c.PNPDeviceID != "" {
			drivers[c.PNPDeviceID] = DriverDirectory(c.InstalledDisplayDrivers)
		}
	}

	slog.Debug("shell device sources",
		slog.Int("partitionable", len(gpus)),
		slog.Int("adapters", len(adapters)),
		slog.Int("drivers", len(drivers)))

	return &DeviceSources{Partitionable: gpus, Adapters: adapters, Drivers: drivers}, nil
}

// PartitionableGPUs lists the host's partitionable GPUs through
// Get-VMHostPartitionableGpu. Names without a PCI# segment are ignored.
func (h *ShellHost) PartitionableGPUs(ctx context.Context) ([]PartitionableGPU, error) {
	res, err := h.query(ctx, "list partitionable GPUs", partitionableGPUsScript)
	if err != nil {
		return nil, err
	}
	items, err := decodeList[psPartitionableGPU](res.Stdout)
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, "unexpected partitionable GPU output", err)
	}
	gpus := make([]PartitionableGPU, 0, len(items))
	for _, it := range items {
		path := strings.TrimSpace(it.Name)
		if !strings.Contains(path, "PCI#") {
			continue
		}
		gpus = append(gpus, PartitionableGPU{InstancePath: path, TotalVRAM: it.TotalVRAM})
	}
	return gpus, nil
}

// IsGPUPVSupported reports whether the host lists any partitionable GPU.
func (h *ShellHost) IsGPUPVSupported(ctx context.Context) bool {
	gpus, err := h.PartitionableGPUs(ctx)
	if err != nil {
		slog.Debug("partitionable GPU probe failed", slog.String("error", err.Error()))
		return false
	}
	return len(gpus) > 0
}

// OSVersion returns the host's Windows version.
func (h *ShellHost) OSVersion(ctx context.Context) (version.Version, error) {
	res, err := h.query(ctx, "read OS version", osVersionScript)
	if err != nil {
		return version.Version{}, err
	}
	v, err := version.ParseVersion(res.Stdout)
	if err != nil {
		return version.Version{}, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, "unexpected OS version output", err)
	}
	return v, nil
}

// adapterFromClassEntry builds a VideoAdapter from a display class registry
// entry. The 64-bit size wins over the legacy 32-bit one.
func adapterFromClassEntry(name, matchingDeviceID string, qwMemory, legacyMemory uint64) VideoAdapter {
	a := VideoAdapter{Name: strings.TrimSpace(name), DedicatedMemory: qwMemory}
	if a.DedicatedMemory == 0 {
		a.DedicatedMemory = legacyMemory
	}
	if ven, dev, ok := hwid.IDs(matchingDeviceID); ok {
		a.VendorID, a.DeviceID = ven, dev
	}
	return a
}

// legacyMemorySize decodes HardwareInformation.MemorySize, which drivers
// store either as a DWORD or as a little-endian binary blob.
func legacyMemorySize(raw json.RawMessage) uint64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var blob []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return 0
	}
	for _, v := range ints {
		blob = append(blob, byte(v))
	}
	return littleEndian(blob)
}

func littleEndian(b []byte) uint64 {
	switch {
	case len(b) >= 8:
		return binary.LittleEndian.Uint64(b)
	case len(b) >= 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return 0
	}
}

// DriverDirectory reduces an InstalledDisplayDrivers value to the directory
// of its first file.
func DriverDirectory(installed string) string {
	first, _, _ := strings.Cut(installed, ",")
	first = strings.TrimSpace(first)
	if i := strings.LastIndex(first, `\`); i >= 0 {
		return first[:i]
	}
	return first
}
