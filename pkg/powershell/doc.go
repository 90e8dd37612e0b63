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

// Package powershell runs PowerShell scripts on the virtualization host.
//
// Each call starts a fresh powershell.exe with -NoProfile and
// -ExecutionPolicy Bypass, forces UTF-8 console output, and drains stdout and
// stderr concurrently so a chatty cmdlet cannot block on a full pipe. Calls
// are bounded by a timeout (defaults.CommandTimeout); a call that runs out of
// time is reported with errors.ErrCodeTimeout.
//
// Output is decoded with BOM detection and trimmed. Success means exit code 0.
//
// Usage:
//
//	ps := powershell.NewExecutor()
//	res, err := ps.Run(ctx, "Get-VM -Name "+powershell.Quote(name))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Stdout)
package powershell
