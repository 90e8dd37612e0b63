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

package hyperv

import (
	"context"
	"fmt"
	"strings"

	"github.com/smart-gpu-pv/gpupv/pkg/powershell"
)

const guestDeviceFilter = `$_.%s -like '*NVIDIA*' -or $_.%s -like '*AMD*'`

// guestStatusScript probes the guest over PowerShell remoting first and over
// remote WMI second. Every path prints exactly one status line.
const guestStatusScript = `$ips = @((Get-VMNetworkAdapter -VMName %[1]s -ErrorAction SilentlyContinue).IPAddresses | Where-Object { $_ -match '^\d{1,3}(\.\d{1,3}){3}$' }); ` +
	`if ($ips.Count -eq 0) { 'VERIFY_SKIPPED:no guest IPv4 address'; return }; ` +
	`$ip = $ips[0]; ` +
	`try { ` +
	`$s = New-PSSession -ComputerName $ip -ErrorAction Stop; ` +
	`$r = Invoke-Command -Session $s -ScriptBlock { ` +
	`$d = Get-PnpDevice -Class Display -ErrorAction SilentlyContinue | Where-Object { %[2]s } | Select-Object -First 1; ` +
	`if (-not $d) { 'DEVICE_NOT_FOUND' } elseif ($d.Status -eq 'OK') { 'DEVICE_OK:' + $d.FriendlyName } else { 'DEVICE_ERROR:' + $d.Status + ':' + $d.FriendlyName } }; ` +
	`Remove-PSSession $s; $r; return } catch { }; ` +
	`try { ` +
	`$w = Get-WmiObject -ComputerName $ip -Class Win32_PnPEntity -ErrorAction Stop | Where-Object { %[3]s } | Select-Object -First 1; ` +
	`if ($w) { 'WMI_DEVICE_FOUND:' + $w.Name } else { 'WMI_DEVICE_NOT_FOUND' } ` +
	`} catch { 'VERIFY_SKIPPED:guest unreachable' }`

// GuestDeviceStatus checks from inside the running guest whether a GPU is
// visible. Unreachable guests yield VERIFY_SKIPPED rather than an error.
func (h *ShellHost) GuestDeviceStatus(ctx context.Context, vm string) (GuestStatus, error) {
	script := fmt.Sprintf(guestStatusScript,
		powershell.Quote(vm),
		fmt.Sprintf(guestDeviceFilter, "FriendlyName", "FriendlyName"),
		fmt.Sprintf(guestDeviceFilter, "Name", "Name"))
	res, err := h.run(ctx, "verify guest device", script)
	if err != nil {
		return GuestStatus{}, err
	}
	return ParseGuestStatus(res.Stdout), nil
}

// ParseGuestStatus interprets the output of the guest probe. The last
// recognized line wins; unrecognized output is treated as skipped.
func ParseGuestStatus(out string) GuestStatus {
	status := GuestStatus{Result: GuestVerifySkipped, Detail: "no guest status reported"}
	for _, line := range powershell.SplitLines(out) {
		tag, detail, _ := strings.Cut(line, ":")
		switch tag {
		case string(GuestDeviceOK), "WMI_DEVICE_FOUND":
			status = GuestStatus{Result: GuestDeviceOK, Detail: detail}
		case string(GuestDeviceError):
			status = GuestStatus{Result: GuestDeviceError, Detail: detail}
		case string(GuestDeviceNotFound), "WMI_DEVICE_NOT_FOUND":
			status = GuestStatus{Result: GuestDeviceNotFound}
		case string(GuestVerifySkipped):
			status = GuestStatus{Result: GuestVerifySkipped, Detail: detail}
		}
	}
	return status
}
