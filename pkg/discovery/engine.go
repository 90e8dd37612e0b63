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
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"github.com/smart-gpu-pv/gpupv/pkg/hwid"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// Strategy is one way of reading the device sources.
type Strategy struct {
	// Name labels the strategy in logs and metrics.
	Name string

	Source hyperv.Inventory

	// KeepUnmatched keeps partitionable GPUs that no video adapter matched,
	// named by their instance path. Otherwise such GPUs are kept only when
	// the capability source reported their memory.
	KeepUnmatched bool
}

// Engine discovers partitionable GPUs and VMs through an ordered list of
// strategies.
type Engine struct {
	strategies []Strategy
}

// NewEngine returns an Engine trying strategies in the given order.
// Strategies without a source are ignored.
func NewEngine(strategies ...Strategy) *Engine {
	e := &Engine{strategies: make([]Strategy, 0, len(strategies))}
	for _, s := range strategies {
		if s.Source == nil {
			continue
		}
		e.strategies = append(e.strategies, s)
	}
	return e
}

// Discover returns the partitionable GPU catalog from the first strategy
// whose provider answers. Provider failures are logged and never returned;
// when all strategies fail the catalog is empty.
func (e *Engine) Discover(ctx context.Context) []DeviceRecord {
	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		src, err := s.Source.DeviceSources(ctx)
		if err != nil {
			strategyTotal.WithLabelValues(s.Name, "error").Inc()
			slog.Warn("device discovery strategy failed",
				slog.String("strategy", s.Name),
				slog.String("error", err.Error()))
			continue
		}
		strategyTotal.WithLabelValues(s.Name, "success").Inc()

		devices := Reconcile(src, s.KeepUnmatched)
		discoveredDevices.Set(float64(len(devices)))
		slog.Debug("devices discovered",
			slog.String("strategy", s.Name),
			slog.Int("count", len(devices)))
		return devices
	}

	slog.Warn("no device discovery strategy succeeded")
	discoveredDevices.Set(0)
	return []DeviceRecord{}
}

// Reconcile joins capability records with adapter records by hardware id.
// The first adapter whose id contains, or is contained in, the GPU's id
// wins.
func Reconcile(src *hyperv.DeviceSources, keepUnmatched bool) []DeviceRecord {
	if src == nil {
		return []DeviceRecord{}
	}

	pnpIDs := make([]string, 0, len(src.Drivers))
	for id := range src.Drivers {
		pnpIDs = append(pnpIDs, id)
	}
	sort.Strings(pnpIDs)

	devices := make([]DeviceRecord, 0, len(src.Partitionable))
	for _, gpu := range src.Partitionable {
		if gpu.InstancePath == "" {
			continue
		}
		rec := DeviceRecord{InstancePath: gpu.InstancePath}

		if a, ok := matchAdapter(gpu.InstancePath, src.Adapters); ok {
			rec.Name = a.Name
			rec.VRAM = a.DedicatedMemory
			rec.PnPDeviceID = pnpDeviceID(a.HardwareID(), gpu.InstancePath, pnpIDs)
			if rec.PnPDeviceID != "" {
				rec.DriverPath = src.Drivers[rec.PnPDeviceID]
			}
		} else {
			if !keepUnmatched && gpu.TotalVRAM == 0 {
				slog.Debug("dropping unmatched GPU without memory size",
					slog.String("instancePath", gpu.InstancePath))
				continue
			}
			rec.VRAM = gpu.TotalVRAM
		}

		if rec.Name == "" {
			rec.Name = gpu.InstancePath
		}
		if rec.VRAM == 0 {
			rec.VRAM = defaults.DeviceVRAM
		}
		rec.Display = DeviceDisplay(rec.Name, rec.VRAM, rec.InstancePath)
		devices = append(devices, rec)
	}
	return devices
}

func matchAdapter(instancePath string, adapters []hyperv.VideoAdapter) (hyperv.VideoAdapter, bool) {
	id := hwid.Extract(strings.ToUpper(instancePath))
	if id == "" {
		return hyperv.VideoAdapter{}, false
	}
	for _, a := range adapters {
		if containsEither(id, a.HardwareID()) {
			return a, true
		}
	}
	return hyperv.VideoAdapter{}, false
}

// pnpDeviceID finds the driver map key describing the same hardware. The
// adapter's numeric id is preferred; the instance path is used when the
// adapter had none.
func pnpDeviceID(adapterID, instancePath string, pnpIDs []string) string {
	want := adapterID
	if want == "" {
		want = hwid.Extract(strings.ToUpper(instancePath))
	}
	if want == "" {
		return ""
	}
	for _, id := range pnpIDs {
		if containsEither(want, hwid.Extract(strings.ToUpper(id))) {
			return id
		}
	}
	return ""
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// FindByName returns the device with the exact friendly name.
func FindByName(devices []DeviceRecord, name string) (DeviceRecord, bool) {
	for _, d := range devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceRecord{}, false
}

// SameInstancePath reports whether either instance path contains the
// other, ignoring case.
func SameInstancePath(a, b string) bool {
	return containsEither(a, b)
}

// FindByInstancePath returns the device whose instance path contains, or is
// contained in, path. Comparison ignores case.
func FindByInstancePath(devices []DeviceRecord, path string) (DeviceRecord, bool) {
	if path == "" {
		return DeviceRecord{}, false
	}
	for _, d := range devices {
		if containsEither(d.InstancePath, path) {
			return d, true
		}
	}
	return DeviceRecord{}, false
}
