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

//go:build !windows

package hyperv

import (
	"context"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
)

// NativeInventory is only functional on Windows.
type NativeInventory struct{}

// NewNativeInventory returns an Inventory that reports the provider as
// unavailable on this platform.
func NewNativeInventory() *NativeInventory {
	return &NativeInventory{}
}

// DeviceSources implements Inventory.
func (n *NativeInventory) DeviceSources(context.Context) (*DeviceSources, error) {
	return nil, gpuerrors.New(gpuerrors.ErrCodeProviderUnavailable, "native inventory requires windows")
}

// VirtualMachines implements Inventory.
func (n *NativeInventory) VirtualMachines(context.Context) ([]VirtualMachine, error) {
	return nil, gpuerrors.New(gpuerrors.ErrCodeProviderUnavailable, "native inventory requires windows")
}
