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

package driverstore

import (
	"fmt"
	"io/fs"
	"strings"
)

// Status classifies the driver files found in an image.
type Status string

const (
	StatusOK      Status = "OK"
	StatusPartial Status = "PARTIAL"
	StatusFail    Status = "FAIL"
)

// hostDriverStore is the image's host driver store repository, relative to
// the image root.
const hostDriverStore = "Windows/System32/HostDriverStore/FileRepository"

// vendorCriticalFiles lists, per vendor token, files that must exist in the
// image once the driver is propagated.
var vendorCriticalFiles = map[string][]string{
	"NVIDIA": {
		"Windows/System32/drivers/nvlddmkm.sys",
		"Windows/System32/nvapi64.dll",
		"Windows/System32/nvoglv64.dll",
	},
}

// Verification is the outcome of checking an image for driver files.
type Verification struct {
	Status  Status   `json:"status" yaml:"status"`
	Found   []string `json:"found,omitempty" yaml:"found,omitempty"`
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Verify checks the image rooted at fsys for the critical files of the GPU's
// vendor and for at least one package in the host driver store.
func Verify(fsys fs.FS, gpuName string) Verification {
	var v Verification

	upper := strings.ToUpper(gpuName)
	for vendor, files := range vendorCriticalFiles {
		if !strings.Contains(upper, vendor) {
			continue
		}
		for _, f := range files {
			if _, err := fs.Stat(fsys, f); err == nil {
				v.Found = append(v.Found, f)
			} else {
				v.Missing = append(v.Missing, f)
			}
		}
	}

	entries, err := fs.ReadDir(fsys, hostDriverStore)
	switch {
	case err != nil:
		v.Missing = append(v.Missing, "HostDriverStore directory does not exist")
	default:
		packages := 0
		for _, e := range entries {
			if e.IsDir() {
				packages++
			}
		}
		if packages > 0 {
			v.Found = append(v.Found, fmt.Sprintf("HostDriverStore: %d packages", packages))
		} else {
			v.Missing = append(v.Missing, "HostDriverStore: no driver packages found")
		}
	}

	switch {
	case len(v.Found) > 0 && len(v.Missing) == 0:
		v.Status = StatusOK
	case len(v.Found) > 0:
		v.Status = StatusPartial
	default:
		v.Status = StatusFail
	}
	return v
}
