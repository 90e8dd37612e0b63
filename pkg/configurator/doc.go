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

// Package configurator applies a GPU-PV configuration to a Hyper-V VM.
//
// Configure runs a fixed, linear sequence of steps against the host. The
// VM's adapter and cache settings are captured before the first change;
// when a required step fails the captured state is restored and the call
// returns the step's error. Restoration is best effort: its own failures
// are reported through the progress sink and never replace the original
// error.
//
// A request of at least 64 MiB enables or reconfigures GPU-PV:
//
//	stop-vm, disable-secure-boot, backup, remove-adapter, add-adapter,
//	configure-resources, enable-cache-types, configure-mmio, copy-drivers,
//	verify-guest
//
// A smaller request disables it:
//
//	stop-vm, disable-secure-boot, backup, remove-adapter, reset-cache-types
//
// Steps run synchronously on the caller's goroutine and progress lines are
// delivered in step order. Cancellation is only observed between steps;
// a step already talking to the host completes. Callers must serialize
// requests for the same VM.
//
// Plan and Apply add request validation on top of Configure: they resolve
// the VM and GPU in a catalog, cap the requested VRAM, and skip requests
// that would not change anything.
package configurator
