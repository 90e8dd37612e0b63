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

// Package version parses and compares Windows OS versions of the form
// Major.Minor.Build[.Revision], as reported by
// [System.Environment]::OSVersion.Version.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyVersion      = errors.New("version string is empty")
	ErrTooManyComponents = errors.New("version has more than 4 components")
	ErrNonNumeric        = errors.New("version component is not numeric")
)

// MinGPUPVHost is the first host release that ships the GPU partition
// adapter cmdlets (Windows 10 2004, build 19041).
var MinGPUPVHost = MustParseVersion("10.0.19041")

// Version is a Windows OS version.
type Version struct {
	Major    int `json:"major" yaml:"major"`
	Minor    int `json:"minor" yaml:"minor"`
	Build    int `json:"build" yaml:"build"`
	Revision int `json:"revision,omitempty" yaml:"revision,omitempty"`

	// Precision is the number of significant components (1 to 4).
	Precision int `json:"precision,omitempty" yaml:"precision,omitempty"`
}

// NewVersion returns a three-component version.
func NewVersion(major, minor, build int) Version {
	return Version{Major: major, Minor: minor, Build: build, Precision: 3}
}

func (v Version) String() string {
	switch v.Precision {
	case 1:
		return strconv.Itoa(v.Major)
	case 2:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	case 4:
		return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
	default:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
	}
}

// ParseVersion parses "10.0.22631" or "10.0.22631.4317". Surrounding
// whitespace is ignored.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, ErrEmptyVersion
	}

	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Version{}, ErrTooManyComponents
	}

	var nums [4]int
	for i, part := range parts {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return Version{}, fmt.Errorf("%w: %q", ErrNonNumeric, part)
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrNonNumeric, part)
		}
		nums[i] = n
	}

	return Version{
		Major:     nums[0],
		Minor:     nums[1],
		Build:     nums[2],
		Revision:  nums[3],
		Precision: len(parts),
	}, nil
}

// MustParseVersion panics on invalid input. Use it for constants only.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(fmt.Sprintf("MustParseVersion: %v", err))
	}
	return v
}

func (v Version) components() [4]int {
	return [4]int{v.Major, v.Minor, v.Build, v.Revision}
}

// Compare returns -1, 0 or 1. Only the components significant in both
// versions are compared, so "10.0" equals "10.0.19041".
func (v Version) Compare(other Version) int {
	precision := min(v.Precision, other.Precision)
	a, b := v.components(), other.components()
	for i := 0; i < precision; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// AtLeast reports whether v is the same as or newer than other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

// IsValid reports whether the version has non-negative components and a
// supported precision.
func (v Version) IsValid() bool {
	for _, n := range v.components() {
		if n < 0 {
			return false
		}
	}
	return v.Precision >= 1 && v.Precision <= 4
}

// SupportsGPUPV reports whether a host on this version can partition GPUs.
func (v Version) SupportsGPUPV() bool {
	return v.IsValid() && v.AtLeast(MinGPUPVHost)
}
