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

// Package driverstore propagates the host's GPU driver into a VM's system
// disk so a partitioned GPU can load in the guest.
//
// Propagate mounts the VM's first virtual disk, resolves the host GPU's
// device name, copies the kernel service driver package, the signed driver
// files and the user-mode runtime libraries into the image, verifies the
// critical files, and unmounts the disk. The unmount runs on every exit path
// and is retried with a fixed backoff while the OS releases file handles.
//
// Name resolution and signed-driver lookups are ordered lists; the first
// entry that yields a result wins.
//
// Copy failures are reported line by line through the progress function.
// Propagation fails only when the disk cannot be mounted or released, no
// GPU name can be resolved, or neither driver copy succeeds. Verification
// findings never fail propagation. Files copied before a failure are left
// in the image.
package driverstore
