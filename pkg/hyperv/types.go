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

	"github.com/smart-gpu-pv/gpupv/pkg/hwid"
)

// PartitionableGPU is a device the host reports as capable of GPU
// partitioning. InstancePath addresses the device when binding an adapter.
type PartitionableGPU struct {
	InstancePath string `json:"instancePath" yaml:"instancePath"`

	// TotalVRAM is the capability source's own memory figure, zero when
	// the provider does not report it.
	TotalVRAM uint64 `json:"totalVRAM,omitempty" yaml:"totalVRAM,omitempty"`
}

// VideoAdapter is a display adapter as seen by the OS, the source of
// accurate names and dedicated memory sizes.
type VideoAdapter struct {
	Name            string `json:"name" yaml:"name"`
	DedicatedMemory uint64 `json:"dedicatedMemory" yaml:"dedicatedMemory"`
	VendorID        uint32 `json:"vendorId" yaml:"vendorId"`
	DeviceID        uint32 `json:"deviceId" yaml:"deviceId"`
}

// HardwareID returns the VEN_xxxx&DEV_xxxx pair of the adapter, or an empty
// string when the ids are unknown.
func (a VideoAdapter) HardwareID() string {
	if a.VendorID == 0 && a.DeviceID == 0 {
		return ""
	}
	return hwid.Pattern(a.VendorID, a.DeviceID)
}

// DeviceSources bundles the three record sets discovery reconciles. They are
// read together so a provider can serve them from one session.
type DeviceSources struct {
	Partitionable []PartitionableGPU

	// Adapters excludes adapters without dedicated memory.
	Adapters []VideoAdapter

	// Drivers maps a PnP device id to the directory of its display driver.
	Drivers map[string]string
}

// Inventory is the read side of the capability set.
type Inventory interface {
	// DeviceSources returns the capability, accuracy and driver records.
	DeviceSources(ctx context.Context) (*DeviceSources, error)

	// VirtualMachines lists the VMs on the host with their GPU-PV status.
	VirtualMachines(ctx context.Context) ([]VirtualMachine, error)
}

// VMState is the power state of a virtual machine.
type VMState string

const (
	StateRunning VMState = "Running"
	StateOff     VMState = "Off"
	StatePaused  VMState = "Paused"
	StateSaved   VMState = "Saved"
	StateUnknown VMState = "Unknown"
)

// StateFromEnabledState maps the CIM EnabledState of Msvm_ComputerSystem.
func StateFromEnabledState(v uint16) VMState {
	switch v {
	case 2:
		return StateRunning
	case 3:
		return StateOff
	case 6:
		return StateSaved
	case 9:
		return StatePaused
	default:
		return StateUnknown
	}
}

// ParseVMState maps the string form of Get-VM's State property.
func ParseVMState(s string) VMState {
	switch VMState(s) {
	case StateRunning, StateOff, StatePaused, StateSaved:
		return VMState(s)
	default:
		return StateUnknown
	}
}

// GPUStatus describes a VM's GPU-PV configuration.
type GPUStatus string

const (
	GPUStatusOn           GPUStatus = "On"
	GPUStatusOff          GPUStatus = "Off"
	GPUStatusNotSupported GPUStatus = "Not supported"
)

// VirtualMachine is a VM with its GPU partition adapter, if any.
type VirtualMachine struct {
	Name         string    `json:"name" yaml:"name"`
	State        VMState   `json:"state" yaml:"state"`
	GPUStatus    GPUStatus `json:"gpuStatus" yaml:"gpuStatus"`
	VRAM         uint64    `json:"vram,omitempty" yaml:"vram,omitempty"`
	InstancePath string    `json:"instancePath,omitempty" yaml:"instancePath,omitempty"`
}

// AdapterSettings is the current GPU partition adapter of a VM.
type AdapterSettings struct {
	InstancePath     string
	MinPartitionVRAM uint64
	MaxPartitionVRAM uint64
}

// VRAM returns the adapter's memory allocation: the maximum partition
// value, or the minimum when no maximum is set.
func (a AdapterSettings) VRAM() uint64 {
	if a.MaxPartitionVRAM > 0 {
		return a.MaxPartitionVRAM
	}
	return a.MinPartitionVRAM
}

// Channel is one of the partition resource channels of an adapter.
type Channel string

const (
	ChannelVRAM    Channel = "VRAM"
	ChannelEncode  Channel = "Encode"
	ChannelDecode  Channel = "Decode"
	ChannelCompute Channel = "Compute"
)

// Channels lists every channel in the order they are configured.
var Channels = []Channel{ChannelVRAM, ChannelEncode, ChannelDecode, ChannelCompute}

// Bounds are the minimum, maximum and optimal partition sizes of a channel.
type Bounds struct {
	Min     uint64
	Max     uint64
	Optimal uint64
}

// GuestResult is the outcome of the in-guest device check.
type GuestResult string

const (
	GuestDeviceOK       GuestResult = "DEVICE_OK"
	GuestDeviceError    GuestResult = "DEVICE_ERROR"
	GuestDeviceNotFound GuestResult = "DEVICE_NOT_FOUND"
	GuestVerifySkipped  GuestResult = "VERIFY_SKIPPED"
)

// GuestStatus is the parsed result of the in-guest device check.
type GuestStatus struct {
	Result GuestResult
	Detail string
}

// Verified reports whether the check passed or could not be performed.
func (g GuestStatus) Verified() bool {
	return g.Result == GuestDeviceOK || g.Result == GuestVerifySkipped
}

func (g GuestStatus) String() string {
	if g.Detail == "" {
		return string(g.Result)
	}
	return fmt.Sprintf("%s: %s", g.Result, g.Detail)
}

// PnPField selects which Get-PnpDevice property a lookup matches.
type PnPField string

const (
	PnPFieldInstanceID PnPField = "InstanceId"
	PnPFieldName       PnPField = "Name"
)

// LookupOp is the comparison a signed-driver lookup uses.
type LookupOp string

const (
	LookupEqual LookupOp = "eq"
	LookupLike  LookupOp = "like"
)

// DriverLookup is one attempt to find Win32_PNPSignedDriver records by
// device name. Lookups are tried in order until one returns records.
type DriverLookup struct {
	Op    LookupOp
	Value string
}

// SignedDriverCopy describes a copy of every file of a GPU's signed driver
// records into a mounted VM image.
type SignedDriverCopy struct {
	GPUName string
	Drive   string
	Lookups []DriverLookup

	// HostLibraries are copied from the host's System32 when present.
	HostLibraries []string

	// StorePackagePatterns select the driver package inside the image's
	// host driver store from which StoreLibraries are copied to System32.
	StorePackagePatterns []string
	StoreLibraries       []string
}
