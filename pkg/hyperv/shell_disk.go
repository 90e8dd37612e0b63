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
	"regexp"
	"strings"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/powershell"
)

var driveLetterPattern = regexp.MustCompile(`^[A-Za-z]$`)

// mountScript attaches the VM's first virtual disk without a drive letter,
// then assigns a free letter to the first partition holding Windows.
const mountScript = `$vhd = (Get-VM -Name %[1]s -ErrorAction Stop).HardDrives[0].Path; ` +
	`if (-not $vhd) { throw 'virtual machine has no hard drive' }; ` +
	`if ((Get-VHD -Path $vhd).Attached) { Dismount-VHD -Path $vhd -ErrorAction Stop }; ` +
	`$disk = Mount-VHD -Path $vhd -NoDriveLetter -Passthru -ErrorAction Stop | Get-Disk; ` +
	`$used = @((Get-PSDrive -PSProvider FileSystem).Name); ` +
	`$letter = $null; ` +
	`foreach ($c in 90..68) { $l = [char]$c; if ($used -notcontains [string]$l) { $letter = $l; break } }; ` +
	`if (-not $letter) { Dismount-VHD -Path $vhd; throw 'no free drive letter' }; ` +
	`foreach ($p in (Get-Partition -DiskNumber $disk.Number | Where-Object { $_.Type -ne 'Reserved' })) { ` +
	`Add-PartitionAccessPath -DiskNumber $disk.Number -PartitionNumber $p.PartitionNumber -AccessPath ($letter + ':\') -ErrorAction SilentlyContinue; ` +
	`if (Test-Path ($letter + ':\Windows\System32')) { $letter; return }; ` +
	`Remove-PartitionAccessPath -DiskNumber $disk.Number -PartitionNumber $p.PartitionNumber -AccessPath ($letter + ':\') -ErrorAction SilentlyContinue }; ` +
	`Dismount-VHD -Path $vhd; throw 'no Windows partition found on virtual disk'`

const dismountScript = `$vhd = (Get-VM -Name %s -ErrorAction Stop).HardDrives[0].Path; ` +
	`if ((Get-VHD -Path $vhd).Attached) { Dismount-VHD -Path $vhd -ErrorAction Stop }`

const healthyDeviceScript = `(Get-PnpDevice -PresentOnly -Status OK -ErrorAction SilentlyContinue | ` +
	`Where-Object { $_.%s -like %s } | Select-Object -First 1).FriendlyName`

const serviceDriverScript = `$drive = %[1]s; ` +
	`$gpu = Get-PnpDevice -Status OK -ErrorAction SilentlyContinue | Where-Object { $_.Name -like ('*' + %[2]s + '*') } | Select-Object -First 1; ` +
	`if (-not $gpu) { throw 'GPU not found' }; ` +
	`if (-not $gpu.Service) { throw 'GPU has no service driver' }; ` +
	`$sd = Get-CimInstance -ClassName Win32_SystemDriver | Where-Object { $_.Name -eq $gpu.Service } | Select-Object -First 1; ` +
	`if (-not $sd) { throw ('service driver not found: ' + $gpu.Service) }; ` +
	`$parts = $sd.PathName.Split('\'); ` +
	`if ($parts.Count -lt 6) { throw ('unexpected driver path: ' + $sd.PathName) }; ` +
	`$src = $parts[0..5] -join '\'; ` +
	`$dst = $drive + '\' + (($parts[1..5] -join '\') -replace 'DriverStore', 'HostDriverStore'); ` +
	`if (Test-Path $dst) { '[SKIP] ' + $dst; return }; ` +
	`New-Item -ItemType Directory -Force -Path (Split-Path $dst) | Out-Null; ` +
	`Copy-Item -Path $src -Destination $dst -Recurse -Force -ErrorAction Stop; ` +
	`'[PACKAGE] ' + $dst`

// signedDriverScript tries the lookups in order and copies the files of
// every signed driver record matched by the first lookup that matches any.
const signedDriverScript = `$drive = %[1]s; ` +
	`$all = @(Get-CimInstance -ClassName Win32_PnPSignedDriver); ` +
	`$drivers = @(); ` +
	`foreach ($cond in %[2]s) { $drivers = @($all | Where-Object $cond); if ($drivers.Count -gt 0) { break } }; ` +
	`'[INFO] Found ' + $drivers.Count + ' driver records'; ` +
	`if ($drivers.Count -eq 0) { 'ERROR: No drivers found'; exit 1 }; ` +
	`$links = @(Get-CimInstance -ClassName Win32_PNPSignedDriverCIMDataFile); ` +
	`$copied = @{}; ` +
	`foreach ($drv in $drivers) { ` +
	`foreach ($f in @($links | Where-Object { $_.Antecedent.DeviceID -eq $drv.DeviceID })) { ` +
	`$p = $f.Dependent.Name; ` +
	`if (-not $p -or -not (Test-Path $p)) { continue }; ` +
	`if ($p -match '(?i)^(.:\\windows\\system32\\driverstore\\filerepository\\[^\\]+)') { ` +
	`$pkg = $Matches[1]; ` +
	`if ($copied.ContainsKey($pkg)) { continue }; $copied[$pkg] = $true; ` +
	`$dst = $drive + ($pkg.Substring(2) -ireplace '\\driverstore\\', '\HostDriverStore\'); ` +
	`if (Test-Path $dst) { continue }; ` +
	`New-Item -ItemType Directory -Force -Path (Split-Path $dst) | Out-Null; ` +
	`Copy-Item -Path $pkg -Destination $dst -Recurse -Force; '[PACKAGE] ' + $pkg + ' -> ' + $dst ` +
	`} else { ` +
	`$dst = $drive + $p.Substring(2); ` +
	`New-Item -ItemType Directory -Force -Path (Split-Path $dst) | Out-Null; ` +
	`Copy-Item -Path $p -Destination $dst -Force; '[FILE] ' + $p + ' -> ' + $dst } } }; ` +
	`foreach ($n in %[3]s) { ` +
	`$src = Join-Path 'C:\Windows\System32' $n; ` +
	`if (-not (Test-Path $src)) { '[SKIP] ' + $n + ' not found on host'; continue }; ` +
	`$dst = Join-Path ($drive + '\Windows\System32') $n; ` +
	`try { Copy-Item -Path $src -Destination $dst -Force -ErrorAction Stop; '[DLL] ' + $src + ' -> ' + $dst } ` +
	`catch { '[WARN] Failed to copy ' + $n + ': ' + $_.Exception.Message } }; ` +
	`$store = Get-ChildItem -Path ($drive + '\Windows\System32\HostDriverStore\FileRepository') -Directory -ErrorAction SilentlyContinue | ` +
	`Where-Object { $name = $_.Name; @(%[4]s | Where-Object { $name -like $_ }).Count -gt 0 } | Select-Object -First 1; ` +
	`if (-not $store) { '[WARN] driver package not found in HostDriverStore'; return }; ` +
	`foreach ($n in %[5]s) { ` +
	`$src = Join-Path $store.FullName $n; ` +
	`$dst = Join-Path ($drive + '\Windows\System32') $n; ` +
	`if (-not (Test-Path $src)) { continue }; ` +
	`if (Test-Path $dst) { '[SKIP] ' + $n + ' already exists'; continue }; ` +
	`try { Copy-Item -Path $src -Destination $dst -Force -ErrorAction Stop; '[DLL_STORE] ' + $src + ' -> ' + $dst } ` +
	`catch { '[WARN] Failed to copy ' + $n + ': ' + $_.Exception.Message } }`

const vendorSupportScript = `$src = 'C:\Windows\System32\drivers\Nvidia Corporation'; ` +
	`if (-not (Test-Path $src)) { '[SKIP] vendor support folder not present'; return }; ` +
	`$dst = %s + '\Windows\System32\drivers\Nvidia Corporation'; ` +
	`New-Item -ItemType Directory -Force -Path $dst | Out-Null; ` +
	`Copy-Item -Path ($src + '\*') -Destination $dst -Recurse -Force -ErrorAction Stop; ` +
	`'[FILE] ' + $dst`

// MountSystemDisk mounts the VM's system disk on the host and returns the
// drive it was assigned, e.g. "Z:".
func (h *ShellHost) MountSystemDisk(ctx context.Context, vm string) (string, error) {
	res, err := h.run(ctx, "mount system disk", fmt.Sprintf(mountScript, powershell.Quote(vm)))
	if err != nil {
		return "", err
	}
	lines := powershell.SplitLines(res.Stdout)
	for i := len(lines) - 1; i >= 0; i-- {
		if driveLetterPattern.MatchString(lines[i]) {
			return strings.ToUpper(lines[i]) + ":", nil
		}
	}
	return "", gpuerrors.NewWithContext(gpuerrors.ErrCodeStepFailed, "mount reported no drive letter",
		map[string]any{"vm": vm, "output": res.Stdout})
}

// DismountDisk detaches the VM's system disk when it is attached.
func (h *ShellHost) DismountDisk(ctx context.Context, vm string) error {
	_, err := h.run(ctx, "dismount system disk", fmt.Sprintf(dismountScript, powershell.Quote(vm)))
	return err
}

// HealthyDeviceName returns the friendly name of the first present, healthy
// PnP device whose field matches the wildcard pattern, or "" when none does.
func (h *ShellHost) HealthyDeviceName(ctx context.Context, field PnPField, like string) (string, error) {
	res, err := h.run(ctx, "find healthy device",
		fmt.Sprintf(healthyDeviceScript, field, powershell.Quote(like)))
	if err != nil {
		return "", err
	}
	lines := powershell.SplitLines(res.Stdout)
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

// CopyServiceDriver copies the driver store package of the GPU's kernel
// service into the image's host driver store.
func (h *ShellHost) CopyServiceDriver(ctx context.Context, gpuName, drive string) ([]string, error) {
	res, err := h.run(ctx, "copy service driver",
		fmt.Sprintf(serviceDriverScript, powershell.Quote(drive), powershell.Quote(gpuName)))
	if err != nil {
		return nil, err
	}
	return powershell.SplitLines(res.Stdout), nil
}

// CopySignedDriverFiles copies the files of the GPU's signed driver records,
// then the host and driver store user-mode libraries, into the image. The
// call fails when no lookup matches a driver record.
func (h *ShellHost) CopySignedDriverFiles(ctx context.Context, c SignedDriverCopy) ([]string, error) {
	if len(c.Lookups) == 0 {
		return nil, gpuerrors.New(gpuerrors.ErrCodeInvalidRequest, "signed driver copy needs at least one lookup")
	}
	script := fmt.Sprintf(signedDriverScript,
		powershell.Quote(c.Drive),
		lookupConditions(c.Lookups),
		psArray(c.HostLibraries),
		psArray(c.StorePackagePatterns),
		psArray(c.StoreLibraries))
	res, err := h.run(ctx, "copy signed driver files", script)
	if err != nil {
		return nil, err
	}
	return powershell.SplitLines(res.Stdout), nil
}

// CopyVendorSupport copies the vendor's driver support folder into the image.
func (h *ShellHost) CopyVendorSupport(ctx context.Context, drive string) ([]string, error) {
	res, err := h.run(ctx, "copy vendor support files",
		fmt.Sprintf(vendorSupportScript, powershell.Quote(drive)))
	if err != nil {
		return nil, err
	}
	return powershell.SplitLines(res.Stdout), nil
}

// lookupConditions renders lookups as an ordered array of Where-Object
// script blocks on DeviceName.
func lookupConditions(lookups []DriverLookup) string {
	blocks := make([]string, 0, len(lookups))
	for _, l := range lookups {
		op := "-like"
		if l.Op == LookupEqual {
			op = "-eq"
		}
		blocks = append(blocks, fmt.Sprintf("{ $_.DeviceName %s %s }", op, powershell.Quote(l.Value)))
	}
	return "@(" + strings.Join(blocks, ", ") + ")"
}
