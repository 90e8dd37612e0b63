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

// Package config loads gpupv runtime settings and assembles the components
// built from them.
//
// Settings come from three layers, later ones winning:
//
//   - built-in defaults (see pkg/defaults)
//   - an optional YAML file, named by --config or GPUPV_CONFIG
//   - GPUPV_* environment variables
//
// # File Format
//
//	powershell: pwsh.exe
//	commandTimeout: 90s
//	native: true
//	vendor: NVIDIA
//	unmount:
//	  attempts: 5
//	  delay: 500ms
//
// # Environment
//
//   - GPUPV_POWERSHELL: PowerShell executable
//   - GPUPV_COMMAND_TIMEOUT: per-call timeout (Go duration)
//   - GPUPV_NATIVE: use native WMI queries before PowerShell (bool)
//   - GPUPV_VENDOR: vendor token used when the GPU name cannot be resolved
//   - GPUPV_UNMOUNT_ATTEMPTS: dismount attempts
//   - GPUPV_UNMOUNT_DELAY: delay between dismount attempts (Go duration)
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	stack := config.NewStack(cfg)
//	devices := stack.Engine.Discover(ctx)
package config
