/*
Copyright © 2025 The gpupv Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"github.com/smart-gpu-pv/gpupv/pkg/discovery"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// deviceTable prints the device catalog as rows.
type deviceTable []discovery.DeviceRecord

func (d deviceTable) TableHeader() []string {
	return []string{"NAME", "VRAM", "INSTANCE PATH"}
}

func (d deviceTable) TableRows() [][]string {
	rows := make([][]string, 0, len(d))
	for _, r := range d {
		rows = append(rows, []string{r.Name, discovery.FormatVRAM(r.VRAM), r.InstancePath})
	}
	return rows
}

// vmTable prints the VM catalog as rows.
type vmTable []discovery.VMRecord

func (v vmTable) TableHeader() []string {
	return []string{"NAME", "STATE", "GPU-PV", "VRAM", "GPU"}
}

func (v vmTable) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, r := range v {
		vram, gpu := "-", "-"
		if r.GPUStatus == hyperv.GPUStatusOn {
			vram = discovery.FormatVRAM(r.VRAM)
			gpu = r.GPUName
			if gpu == "" {
				gpu = r.InstancePath
			}
		}
		rows = append(rows, []string{r.Name, string(r.State), string(r.GPUStatus), vram, gpu})
	}
	return rows
}
