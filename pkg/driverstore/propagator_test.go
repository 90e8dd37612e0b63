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
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVM   = "dev"
	testGPU  = "NVIDIA GeForce RTX 4060 Laptop GPU"
	testPath = `\\?\PCI#VEN_10DE&DEV_28A1&SUBSYS_0B5C1028#4&1#{064092b3}`
)

type fakeHost struct {
	mountErr      error
	dismountFails int
	adapter       *hyperv.AdapterSettings
	gpus          []hyperv.PartitionableGPU
	names         map[string]string // field:pattern -> name
	serviceErr    error
	signedErr     error
	vendorErr     error

	dismounts int
	signed    *hyperv.SignedDriverCopy
	calls     []string
}

func (f *fakeHost) MountSystemDisk(context.Context, string) (string, error) {
	f.calls = append(f.calls, "mount")
	if f.mountErr != nil {
		return "", f.mountErr
	}
	return "Z:", nil
}

func (f *fakeHost) DismountDisk(context.Context, string) error {
	f.calls = append(f.calls, "dismount")
	f.dismounts++
	if f.dismounts <= f.dismountFails {
		return errors.New("disk in use")
	}
	return nil
}

func (f *fakeHost) GPUAdapter(context.Context, string) (*hyperv.AdapterSettings, error) {
	return f.adapter, nil
}

func (f *fakeHost) PartitionableGPUs(context.Context) ([]hyperv.PartitionableGPU, error) {
	return f.gpus, nil
}

func (f *fakeHost) HealthyDeviceName(_ context.Context, field hyperv.PnPField, like string) (string, error) {
	f.calls = append(f.calls, "name:"+string(field)+":"+like)
	return f.names[string(field)+":"+like], nil
}

func (f *fakeHost) CopyServiceDriver(context.Context, string, string) ([]string, error) {
	f.calls = append(f.calls, "service")
	if f.serviceErr != nil {
		return nil, f.serviceErr
	}
	return []string{`[PACKAGE] Z:\Windows\System32\HostDriverStore\FileRepository\nvltsi.inf_amd64_1`}, nil
}

func (f *fakeHost) CopySignedDriverFiles(_ context.Context, c hyperv.SignedDriverCopy) ([]string, error) {
	f.calls = append(f.calls, "signed")
	f.signed = &c
	if f.signedErr != nil {
		return []string{"ERROR: No drivers found"}, f.signedErr
	}
	return []string{
		"[INFO] Found 1 driver records",
		`[FILE] C:\Windows\System32\nvapi64.dll -> Z:\Windows\System32\nvapi64.dll`,
		"[SKIP] nvcompiler.dll not found on host",
		"[WARN] driver package not found in HostDriverStore",
	}, nil
}

func (f *fakeHost) CopyVendorSupport(context.Context, string) ([]string, error) {
	f.calls = append(f.calls, "vendor")
	return nil, f.vendorErr
}

func healthyHost() *fakeHost {
	return &fakeHost{
		adapter: &hyperv.AdapterSettings{InstancePath: testPath},
		names: map[string]string{
			"InstanceId:*VEN_10DE&DEV_28A1*": testGPU,
		},
	}
}

func completeImage() fstest.MapFS {
	return fstest.MapFS{
		"Windows/System32/drivers/nvlddmkm.sys":                                {Data: []byte("sys")},
		"Windows/System32/nvapi64.dll":                                         {Data: []byte("dll")},
		"Windows/System32/nvoglv64.dll":                                        {Data: []byte("dll")},
		"Windows/System32/HostDriverStore/FileRepository/nvltsi.inf_amd64_1/x": {Data: []byte("x")},
	}
}

func newTestPropagator(h Host, image fs.FS) *Propagator {
	return NewPropagator(h,
		WithUnmountRetry(5, time.Millisecond),
		WithImageFS(func(string) fs.FS { return image }))
}

type lines []string

func (l *lines) emit(s string) { *l = append(*l, s) }

func TestPropagateSuccess(t *testing.T) {
	h := healthyHost()
	var out lines

	rep, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, out.emit)
	require.NoError(t, err)
	assert.Equal(t, testGPU, rep.GPUName)
	assert.Equal(t, "Z:", rep.Drive)
	assert.Equal(t, StatusOK, rep.Verification.Status)
	assert.Contains(t, rep.Copied, `Z:\Windows\System32\nvapi64.dll`)
	assert.Contains(t, rep.Warnings, "driver package not found in HostDriverStore")

	assert.Equal(t, "mount", h.calls[0])
	assert.Equal(t, "dismount", h.calls[len(h.calls)-1])
	assert.Contains(t, h.calls, "vendor")

	require.NotNil(t, h.signed)
	assert.Equal(t, HostLibraries, h.signed.HostLibraries)
	assert.Equal(t, "Z:", h.signed.Drive)
	assert.Equal(t, hyperv.DriverLookup{Op: hyperv.LookupEqual, Value: testGPU}, h.signed.Lookups[0])

	assert.Equal(t, "Mounting virtual machine disk...", out[0])
	assert.Contains(t, out, "[FOUND] HostDriverStore: 1 packages")
	assert.Contains(t, out, "Verification passed: all critical driver files are present")
	assert.Equal(t, "Unmounting virtual machine disk...", out[len(out)-1])
}

func TestPropagateMountFailureSkipsUnmount(t *testing.T) {
	h := healthyHost()
	h.mountErr = errors.New("vhd locked")

	_, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, func(string) {})
	require.Error(t, err)
	assert.True(t, gpuerrors.IsCode(err, gpuerrors.ErrCodeStepFailed))
	assert.Equal(t, []string{"mount"}, h.calls)
}

func TestPropagateNameFallbacks(t *testing.T) {
	t.Run("partitionable GPU", func(t *testing.T) {
		// The adapter path has no hardware id, the partitionable GPU entry
		// matching it case-insensitively does not either, so the vendor
		// lookup answers.
		h := &fakeHost{
			adapter: &hyperv.AdapterSettings{InstancePath: "opaque"},
			gpus:    []hyperv.PartitionableGPU{{InstancePath: "OPAQUE"}},
			names:   map[string]string{"Name:*NVIDIA*": "NVIDIA RTX A2000"},
		}
		var out lines
		rep, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, out.emit)
		require.NoError(t, err)
		assert.Equal(t, "NVIDIA RTX A2000", rep.GPUName)
		assert.Len(t, filter(out, "Warning: could not resolve"), 2)
	})

	t.Run("no adapter", func(t *testing.T) {
		h := &fakeHost{names: map[string]string{"Name:*NVIDIA*": testGPU}}
		rep, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, func(string) {})
		require.NoError(t, err)
		assert.Equal(t, testGPU, rep.GPUName)
	})

	t.Run("all fail", func(t *testing.T) {
		h := &fakeHost{}
		_, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, func(string) {})
		require.Error(t, err)
		assert.True(t, gpuerrors.IsCode(err, gpuerrors.ErrCodeStepFailed))
		assert.Equal(t, "dismount", h.calls[len(h.calls)-1])
		assert.NotContains(t, h.calls, "service")
	})
}

func TestPropagateCopyFailures(t *testing.T) {
	t.Run("one copy fails", func(t *testing.T) {
		h := healthyHost()
		h.serviceErr = errors.New("service driver not found")
		var out lines
		rep, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, out.emit)
		require.NoError(t, err)
		assert.NotEmpty(t, filter(out, "Warning: GPU service driver copy failed"))
		assert.NotEmpty(t, rep.Warnings)
	})

	t.Run("both copies fail", func(t *testing.T) {
		h := healthyHost()
		h.serviceErr = errors.New("service driver not found")
		h.signedErr = errors.New("powershell exited with code 1")
		_, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, func(string) {})
		require.Error(t, err)
		assert.True(t, gpuerrors.IsCode(err, gpuerrors.ErrCodeStepFailed))
		assert.NotContains(t, h.calls, "vendor")
		assert.Equal(t, "dismount", h.calls[len(h.calls)-1])
	})

	t.Run("vendor copy failure is a warning", func(t *testing.T) {
		h := healthyHost()
		h.vendorErr = errors.New("access denied")
		_, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, func(string) {})
		require.NoError(t, err)
	})
}

func TestPropagateVerificationIsAdvisory(t *testing.T) {
	h := healthyHost()
	var out lines
	rep, err := newTestPropagator(h, fstest.MapFS{}).Propagate(context.Background(), testVM, out.emit)
	require.NoError(t, err)
	assert.Equal(t, StatusFail, rep.Verification.Status)
	assert.Contains(t, out, "Error: verification failed, critical driver files are missing")
}

func TestPropagateUnmountRetry(t *testing.T) {
	h := healthyHost()
	h.dismountFails = 2
	_, err := newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, 3, h.dismounts)

	h = healthyHost()
	h.dismountFails = 10
	_, err = newTestPropagator(h, completeImage()).Propagate(context.Background(), testVM, func(string) {})
	require.Error(t, err)
	assert.True(t, gpuerrors.IsCode(err, gpuerrors.ErrCodeStepFailed))
	assert.Equal(t, 5, h.dismounts)
}

func TestPropagateUnmountsAfterCancel(t *testing.T) {
	h := healthyHost()
	h.dismountFails = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPropagator(h, completeImage()).Propagate(ctx, testVM, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, 2, h.dismounts)
}

func TestCopiedTarget(t *testing.T) {
	assert.Equal(t, `Z:\b`, copiedTarget(`[FILE] C:\a -> Z:\b`))
	assert.Equal(t, `Z:\pkg`, copiedTarget(`[PACKAGE] Z:\pkg`))
	assert.Equal(t, "nvml.dll", copiedTarget("[DLL_STORE] nvml.dll"))
}

func filter(in []string, prefix string) []string {
	var out []string
	for _, l := range in {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}
