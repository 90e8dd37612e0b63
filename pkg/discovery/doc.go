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

// Package discovery reconciles the GPU records reported by the host's
// management sources into one device catalog.
//
// Partitionable GPUs carry the instance path needed to bind a partition
// adapter but not a usable name or memory size; video adapters carry the
// name and dedicated memory but not the instance path. The Engine joins the
// two by hardware id (see package hwid), enriches the result with the
// display driver directory, and formats display text.
//
// Sources are tried as an ordered list of strategies. A strategy whose
// provider fails is skipped; when every strategy fails the catalog is empty:
//
//	engine := discovery.NewEngine(
//	    discovery.Strategy{Name: "native", Source: hyperv.NewNativeInventory(), KeepUnmatched: true},
//	    discovery.Strategy{Name: "shell", Source: hyperv.NewShellHost(ps)},
//	)
//	devices := engine.Discover(ctx)
//
// The same strategy list serves the VM catalog (Engine.VirtualMachines),
// which resolves the GPU name of every VM with GPU-PV enabled.
package discovery
