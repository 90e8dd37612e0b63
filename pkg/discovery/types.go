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
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// DeviceRecord is one partitionable GPU in the catalog. Records are built
// fresh on every discovery call.
type DeviceRecord struct {
	// Name is the adapter's friendly name, or the instance path when no
	// adapter matched.
	Name string `json:"name" yaml:"name"`

	// InstancePath addresses the physical device for partition binding.
	// It is never empty.
	InstancePath string `json:"instancePath" yaml:"instancePath"`

	// VRAM is the dedicated memory in bytes. It is never zero.
	VRAM uint64 `json:"vram" yaml:"vram"`

	PnPDeviceID string `json:"pnpDeviceId,omitempty" yaml:"pnpDeviceId,omitempty"`
	DriverPath  string `json:"driverPath,omitempty" yaml:"driverPath,omitempty"`

	Display string `json:"display" yaml:"display"`
}

// VMRecord is one virtual machine with its GPU-PV configuration.
type VMRecord struct {
	hyperv.VirtualMachine `yaml:",inline"`

	// GPUName is the friendly name of the assigned GPU, empty when GPU-PV
	// is off or the GPU is not in the catalog.
	GPUName string `json:"gpuName,omitempty" yaml:"gpuName,omitempty"`

	Display string `json:"display" yaml:"display"`
}
