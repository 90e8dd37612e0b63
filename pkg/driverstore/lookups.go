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
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

var (
	// nameSuffixes are removed in order to get a GPU's core model name.
	nameSuffixes = []string{" Laptop GPU", " Laptop", " Mobile", " GPU"}

	modelNumber = regexp.MustCompile(`(RTX|GTX|GT)\s*(\d+)`)

	// HostLibraries are the runtime libraries copied from the host's
	// System32 when present.
	HostLibraries = []string{
		"nvapi64.dll",
		"nvoglv64.dll",
		"nvcuda.dll",
		"nvwgf2umx.dll",
		"nvd3dumx.dll",
		"nvcuvid.dll",
		"nvencodeapi64.dll",
		"nvfatbinaryLoader.dll",
		"nvcompiler.dll",
	}

	// StorePackagePatterns select the display driver package inside the
	// image's host driver store.
	StorePackagePatterns = []string{"*nvltsi*", "*nvlt.inf*"}

	// StoreLibraries are copied from that package into the image's System32.
	StoreLibraries = []string{
		"nvwgf2umx.dll",
		"nvoglv64.dll",
		"nvd3dumx.dll",
		"nvcuda64.dll",
		"nvwgf2um.dll",
		"nvopencl64.dll",
		"nvEncodeAPI64.dll",
		"nvofapi64.dll",
		"nvml.dll",
		"nvcuvid64.dll",
		"nvoptix.dll",
		"nvrtum64.dll",
	}
)

// CoreName strips the form factor suffixes from a GPU name, e.g.
// "NVIDIA GeForce RTX 4060 Laptop GPU" becomes "NVIDIA GeForce RTX 4060".
func CoreName(gpuName string) string {
	core := gpuName
	for _, suffix := range nameSuffixes {
		core = strings.TrimSuffix(core, suffix)
	}
	return strings.TrimSpace(core)
}

// DriverLookups returns the ordered signed-driver lookups for a GPU name:
// the exact name, the name as a substring, the core name, the core name
// without " Laptop", and finally the vendor token with the model number.
// Duplicates are dropped keeping the first occurrence.
func DriverLookups(gpuName, vendor string) []hyperv.DriverLookup {
	core := CoreName(gpuName)

	lookups := []hyperv.DriverLookup{
		{Op: hyperv.LookupEqual, Value: gpuName},
		{Op: hyperv.LookupLike, Value: "*" + gpuName + "*"},
		{Op: hyperv.LookupLike, Value: "*" + core + "*"},
		{Op: hyperv.LookupLike, Value: "*" + strings.ReplaceAll(core, " Laptop", "") + "*"},
	}
	if m := modelNumber.FindStringSubmatch(core); m != nil && vendor != "" {
		lookups = append(lookups, hyperv.DriverLookup{Op: hyperv.LookupLike, Value: "*" + vendor + "*" + m[2] + "*"})
	}

	seen := sets.New[string]()
	unique := lookups[:0]
	for _, l := range lookups {
		key := string(l.Op) + ":" + l.Value
		if l.Value == "" || l.Value == "**" || seen.Has(key) {
			continue
		}
		seen.Insert(key)
		unique = append(unique, l)
	}
	return unique
}
