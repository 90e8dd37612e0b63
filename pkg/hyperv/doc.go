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

// Package hyperv exposes the virtualization management capability set of a
// Hyper-V host: enumerating partitionable GPUs, video adapters and driver
// metadata, VM power state, GPU partition adapters and their resource
// bounds, VM cache and MMIO settings, virtual disk mount/unmount, signed
// driver files, and an in-guest device health probe.
//
// Two providers implement the read side (Inventory):
//
//   - NativeInventory queries WMI (root\virtualization\v2 and root\cimv2)
//     through a scoped SWbemServices session and reads the display adapter
//     class in the registry. It is only available on Windows.
//   - ShellHost derives the same records through PowerShell cmdlets.
//
// ShellHost also implements every mutating call. Callers choose providers by
// composing them (see discovery.Strategy); nothing in this package switches
// on provider names at runtime.
package hyperv
