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

// Package defaults provides centralized configuration constants for gpupv.
//
// This package defines timeout values, retry parameters, and GPU-PV sizing
// constants used across the codebase. Centralizing these values ensures
// consistency and makes tuning easier.
//
// # Categories
//
//   - Command timeouts: for PowerShell and management calls against the host
//   - Driver propagation: virtual disk unmount retry policy
//   - Partitioning: VRAM thresholds and MMIO sizes applied to a VM
//   - Server timeouts: for the gpupvd HTTP server
//   - CLI timeouts: for long running command-line operations
//
// # Usage
//
//	import "github.com/smart-gpu-pv/gpupv/pkg/defaults"
//
//	ctx, cancel := context.WithTimeout(ctx, defaults.CommandTimeout)
//	defer cancel()
//
// # Guidelines
//
//   - Every host call is bounded by CommandTimeout; a timed out call is a failed step
//   - Unmount is the only retried operation (UnmountAttempts x UnmountRetryDelay)
//   - Server shutdown: 30s for graceful shutdown
package defaults
