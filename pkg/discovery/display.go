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
	"fmt"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

const (
	nameLimit   = 30
	nameColumn  = 33
	pathLimit   = 20
	ellipsis    = "..."
	gpuPVOn     = "GPU-PV: Supported"
	gpuPVAbsent = "GPU-PV: Not supported"
)

// FormatVRAM renders a byte count as whole mebibytes, e.g. "4096MB".
func FormatVRAM(b uint64) string {
	return fmt.Sprintf("%.0fMB", float64(b)/float64(defaults.MiB))
}

// DeviceDisplay builds the aligned one-line description of a device.
func DeviceDisplay(name string, vram uint64, instancePath string) string {
	return fmt.Sprintf("%-*s\t [ VRAM:%s  Path:%s ] ",
		nameColumn, truncate(name, nameLimit), FormatVRAM(vram), truncate(instancePath, pathLimit))
}

// VMDisplay builds the one-line description of a VM.
func VMDisplay(vm hyperv.VirtualMachine, gpuName string) string {
	var detail string
	switch vm.GPUStatus {
	case hyperv.GPUStatusOn:
		detail = "VRAM:" + FormatVRAM(vm.VRAM)
		if gpuName != "" {
			detail += " (" + gpuName + ")"
		}
	case hyperv.GPUStatusNotSupported:
		detail = gpuPVAbsent
	default:
		detail = gpuPVOn
	}
	return fmt.Sprintf("%s(%s)  [%s]", vm.Name, vm.State, detail)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + ellipsis
}
