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

package defaults

// Byte units.
const (
	MiB uint64 = 1024 * 1024
	GiB uint64 = 1024 * MiB
)

// Partitioning constants.
const (
	// MinEnableVRAM is the smallest request that enables GPU-PV. Anything
	// below disables it.
	MinEnableVRAM = 64 * MiB

	// DeviceVRAM is used when a device's memory cannot be resolved.
	DeviceVRAM = 1 * GiB

	// MaxVRAMRatio caps a request relative to the device's physical VRAM.
	MaxVRAMRatio = 0.9

	// SameVRAMTolerance is the difference under which two allocations are
	// considered equal.
	SameVRAMTolerance = 4 * MiB

	// LowMMIOSpace and HighMMIOSpace are the PowerShell size literals for the
	// VM's memory-mapped I/O regions.
	LowMMIOSpace  = "1GB"
	HighMMIOSpace = "32GB"
)
