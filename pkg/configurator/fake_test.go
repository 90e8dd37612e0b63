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
	"errors"
	"fmt"
	"sync"

	"github.com/smart-gpu-pv/gpupv/pkg/driverstore"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

var errHost = errors.New("powershell exited with code 1")

// fakeHost keeps a single VM's adapter and cache state and fails the calls
// named in fail.
type fakeHost struct {
	mu sync.Mutex

	state   hyperv.VMState
	adapter *hyperv.AdapterSettings
	cache   bool
	guest   hyperv.GuestStatus

	// fail maps a call name, or "SetGPUResource:<channel>", to its error.
	fail map[string]error

	calls []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{state: hyperv.StateRunning, fail: map[string]error{}}
}

func (f *fakeHost) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeHost) VMState(context.Context, string) (hyperv.VMState, error) {
	if err := f.call("VMState"); err != nil {
		return hyperv.StateUnknown, err
	}
	return f.state, nil
}

func (f *fakeHost) StopVM(context.Context, string) error {
	if err := f.call("StopVM"); err != nil {
		return err
	}
	f.state = hyperv.StateOff
	return nil
}

func (f *fakeHost) DisableSecureBoot(context.Context, string) error {
	return f.call("DisableSecureBoot")
}

func (f *fakeHost) GPUAdapter(context.Context, string) (*hyperv.AdapterSettings, error) {
	if err := f.call("GPUAdapter"); err != nil {
		return nil, err
	}
	if f.adapter == nil {
		return nil, nil
	}
	a := *f.adapter
	return &a, nil
}

func (f *fakeHost) GuestControlledCacheTypes(context.Context, string) (bool, error) {
	if err := f.call("GuestControlledCacheTypes"); err != nil {
		return false, err
	}
	return f.cache, nil
}

func (f *fakeHost) RemoveGPUAdapter(context.Context, string) error {
	if err := f.call("RemoveGPUAdapter"); err != nil {
		return err
	}
	f.adapter = nil
	return nil
}

func (f *fakeHost) AddGPUAdapter(_ context.Context, _ string, path string) error {
	if err := f.call("AddGPUAdapter"); err != nil {
		return err
	}
	f.adapter = &hyperv.AdapterSettings{InstancePath: path}
	return nil
}

func (f *fakeHost) SetGPUResource(_ context.Context, _ string, ch hyperv.Channel, b hyperv.Bounds) error {
	name := fmt.Sprintf("SetGPUResource:%s", ch)
	if err := f.call(name); err != nil {
		return err
	}
	if ch == hyperv.ChannelVRAM && f.adapter != nil {
		f.adapter.MinPartitionVRAM = b.Min
		f.adapter.MaxPartitionVRAM = b.Max
	}
	return nil
}

func (f *fakeHost) SetGuestControlledCacheTypes(_ context.Context, _ string, enabled bool) error {
	if err := f.call(fmt.Sprintf("SetGuestControlledCacheTypes:%t", enabled)); err != nil {
		return err
	}
	f.cache = enabled
	return nil
}

func (f *fakeHost) SetMMIOSpace(_ context.Context, _ string, low, high string) error {
	return f.call("SetMMIOSpace:" + low + ":" + high)
}

func (f *fakeHost) GuestDeviceStatus(context.Context, string) (hyperv.GuestStatus, error) {
	if err := f.call("GuestDeviceStatus"); err != nil {
		return hyperv.GuestStatus{}, err
	}
	return f.guest, nil
}

func (f *fakeHost) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

type fakePropagator struct {
	err   error
	calls int
}

func (p *fakePropagator) Propagate(_ context.Context, _ string, emit func(string)) (*driverstore.Report, error) {
	p.calls++
	emit("[PACKAGE] Z:\\Windows\\System32\\HostDriverStore\\FileRepository\\nvltsi.inf_amd64_1")
	if p.err != nil {
		return nil, p.err
	}
	return &driverstore.Report{GPUName: "gpu", Verification: driverstore.Verification{Status: driverstore.StatusOK}}, nil
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) sink(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) has(line string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l == line {
			return true
		}
	}
	return false
}
