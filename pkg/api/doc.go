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

// Package api serves the gpupv HTTP API.
//
// Serve configures structured logging, builds the host stack from
// pkg/config, registers the domain routes, and hands lifecycle management
// to pkg/server.
//
// # Endpoints
//
// GET /v1/devices
//
//	Partitionable GPU catalog, reconciled from the host's management data.
//	An unreachable provider yields an empty list, never an error.
//
// GET /v1/vms
//
//	Virtual machines with state, GPU-PV status, VRAM and assigned GPU.
//
// POST /v1/configure
//
//	Body: {"vm": "dev", "gpu": "NVIDIA GeForce RTX 4060", "vramMB": 4096, "force": false}
//
//	Plans and applies a GPU-PV configuration. A vramMB below 64 disables
//	GPU-PV. The response carries every progress line. With ?dryRun=true
//	only the plan is returned. A second request for a VM that is being
//	configured gets 409 CONFLICT.
//
// # Usage
//
//	func main() {
//	    if err := api.Serve(context.Background()); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package api
