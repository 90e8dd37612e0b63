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

// Package hwid extracts the vendor/device identifier pair from PCI device
// identifiers so records from different management sources can be correlated.
//
// Two spellings are accepted. PnP device ids use a backslash after the bus
// name (PCI\VEN_10DE&DEV_28A1&SUBSYS_...), while the instance paths reported
// for partitionable GPUs use a hash (\?\PCI#VEN_10DE&DEV_28A1&...).
package hwid

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	pnpMarker      = `PCI\`
	instanceMarker = "PCI#"
	markerLen      = 4

	vendorToken = "VEN_"
	deviceToken = "&DEV_"
)

// Extract returns the "VEN_xxxx&DEV_xxxx" portion of id, or an empty string
// when id has no PCI marker or lacks either token.
func Extract(id string) string {
	pos := strings.Index(id, pnpMarker)
	if pos < 0 {
		pos = strings.Index(id, instanceMarker)
	}
	if pos < 0 {
		return ""
	}

	rest := id[pos+markerLen:]
	venPos := strings.Index(rest, vendorToken)
	devPos := strings.Index(rest, deviceToken)
	if venPos < 0 || devPos < 0 || devPos < venPos {
		return ""
	}

	if end := strings.Index(rest[devPos+1:], "&"); end >= 0 {
		return rest[venPos : devPos+1+end]
	}
	return rest[venPos:]
}

// Match reports whether the hardware id of one identifier is contained in the
// hardware id of the other. Identifiers without a hardware id never match.
func Match(a, b string) bool {
	ha, hb := Extract(a), Extract(b)
	if ha == "" || hb == "" {
		return false
	}
	return strings.Contains(ha, hb) || strings.Contains(hb, ha)
}

// Pattern formats numeric vendor and device ids the way PnP ids spell them.
func Pattern(vendorID, deviceID uint32) string {
	return fmt.Sprintf("VEN_%04X&DEV_%04X", vendorID, deviceID)
}

// IDs parses the numeric vendor and device ids out of id. Matching is case
// insensitive so registry spellings such as "pci\ven_10de&dev_28a1" work too.
func IDs(id string) (vendorID, deviceID uint32, ok bool) {
	pair := Extract(strings.ToUpper(id))
	if pair == "" {
		return 0, 0, false
	}
	ven, dev, found := strings.Cut(pair, "&")
	if !found {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(ven, vendorToken), 16, 32)
	if err != nil {
		return 0, 0, false
	}
	d, err := strconv.ParseUint(strings.TrimPrefix(dev, deviceToken[1:]), 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(v), uint32(d), true
}
