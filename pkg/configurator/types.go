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

package configurator

import (
	"context"
	"log/slog"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"github.com/smart-gpu-pv/gpupv/pkg/driverstore"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// Host is the part of the virtualization host the orchestrator drives.
type Host interface {
	VMState(ctx context.Context, vm string) (hyperv.VMState, error)
	StopVM(ctx context.Context, vm string) error
	DisableSecureBoot(ctx context.Context, vm string) error
	GPUAdapter(ctx context.Context, vm string) (*hyperv.AdapterSettings, error)
	GuestControlledCacheTypes(ctx context.Context, vm string) (bool, error)
	RemoveGPUAdapter(ctx context.Context, vm string) error
	AddGPUAdapter(ctx context.Context, vm, instancePath string) error
	SetGPUResource(ctx context.Context, vm string, ch hyperv.Channel, b hyperv.Bounds) error
	SetGuestControlledCacheTypes(ctx context.Context, vm string, enabled bool) error
	SetMMIOSpace(ctx context.Context, vm, low, high string) error
	GuestDeviceStatus(ctx context.Context, vm string) (hyperv.GuestStatus, error)
}

// DriverPropagator copies the host GPU driver into a VM's disk.
type DriverPropagator interface {
	Propagate(ctx context.Context, vm string, emit func(string)) (*driverstore.Report, error)
}

// Sink receives human-readable progress lines. A nil Sink discards them.
type Sink func(line string)

// emitter wraps a Sink so a panicking sink cannot abort a workflow.
func emitter(s Sink) func(string) {
	if s == nil {
		return func(string) {}
	}
	return func(line string) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("progress sink panicked", slog.Any("panic", r))
			}
		}()
		s(line)
	}
}

// Request is one configuration attempt.
type Request struct {
	VMName string `json:"vm" yaml:"vm"`

	// GPUName and InstancePath identify the target device. They may be
	// empty when disabling.
	GPUName      string `json:"gpu,omitempty" yaml:"gpu,omitempty"`
	InstancePath string `json:"instancePath,omitempty" yaml:"instancePath,omitempty"`

	// VRAM is the requested allocation in bytes.
	VRAM uint64 `json:"vram" yaml:"vram"`
}

// Enables reports whether the request enables GPU-PV rather than disabling it.
func (r Request) Enables() bool {
	return r.VRAM >= defaults.MinEnableVRAM
}

// Backup is the VM's adapter and cache state before a configuration attempt.
type Backup struct {
	HasAdapter                bool   `json:"hasAdapter" yaml:"hasAdapter"`
	InstancePath              string `json:"instancePath,omitempty" yaml:"instancePath,omitempty"`
	VRAM                      uint64 `json:"vram,omitempty" yaml:"vram,omitempty"`
	GuestControlledCacheTypes bool   `json:"guestControlledCacheTypes" yaml:"guestControlledCacheTypes"`
}
