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
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/hwid"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// DefaultVendor is the vendor token used for the last resort name lookup
// and the vendor specific copies.
const DefaultVendor = "NVIDIA"

// Host is the part of the virtualization host that propagation needs.
type Host interface {
	MountSystemDisk(ctx context.Context, vm string) (string, error)
	DismountDisk(ctx context.Context, vm string) error
	GPUAdapter(ctx context.Context, vm string) (*hyperv.AdapterSettings, error)
	PartitionableGPUs(ctx context.Context) ([]hyperv.PartitionableGPU, error)
	HealthyDeviceName(ctx context.Context, field hyperv.PnPField, like string) (string, error)
	CopyServiceDriver(ctx context.Context, gpuName, drive string) ([]string, error)
	CopySignedDriverFiles(ctx context.Context, c hyperv.SignedDriverCopy) ([]string, error)
	CopyVendorSupport(ctx context.Context, drive string) ([]string, error)
}

// Report summarizes one propagation.
type Report struct {
	GPUName      string       `json:"gpuName" yaml:"gpuName"`
	Drive        string       `json:"drive" yaml:"drive"`
	Copied       []string     `json:"copied,omitempty" yaml:"copied,omitempty"`
	Warnings     []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Verification Verification `json:"verification" yaml:"verification"`
}

// Propagator copies host GPU drivers into VM images.
type Propagator struct {
	host    Host
	vendor  string
	backoff wait.Backoff
	imageFS func(drive string) fs.FS
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithVendor sets the vendor token, e.g. "NVIDIA".
func WithVendor(vendor string) Option {
	return func(p *Propagator) {
		if vendor != "" {
			p.vendor = strings.ToUpper(vendor)
		}
	}
}

// WithUnmountRetry sets how often, and how far apart, the unmount is tried.
func WithUnmountRetry(attempts int, delay time.Duration) Option {
	return func(p *Propagator) {
		if attempts > 0 {
			p.backoff.Steps = attempts
		}
		if delay > 0 {
			p.backoff.Duration = delay
		}
	}
}

// WithImageFS sets how a mounted drive is opened for verification.
func WithImageFS(open func(drive string) fs.FS) Option {
	return func(p *Propagator) {
		if open != nil {
			p.imageFS = open
		}
	}
}

// NewPropagator returns a Propagator acting on host.
func NewPropagator(host Host, opts ...Option) *Propagator {
	p := &Propagator{
		host:   host,
		vendor: DefaultVendor,
		backoff: wait.Backoff{
			Duration: defaults.UnmountRetryDelay,
			Factor:   1,
			Steps:    defaults.UnmountAttempts,
		},
		imageFS: func(drive string) fs.FS { return os.DirFS(drive + `\`) },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Propagate copies the host GPU driver into the VM's system disk. Progress
// lines go to emit, which must not be nil. The disk is unmounted on every
// return path.
func (p *Propagator) Propagate(ctx context.Context, vm string, emit func(string)) (rep *Report, err error) {
	rep = &Report{}

	emit("Mounting virtual machine disk...")
	drive, err := p.host.MountSystemDisk(ctx, vm)
	if err != nil {
		return rep, gpuerrors.WrapWithContext(gpuerrors.ErrCodeStepFailed, "failed to mount virtual machine disk", err,
			map[string]any{"vm": vm})
	}
	rep.Drive = drive
	emit("Virtual machine disk mounted at " + drive)

	defer func() {
		emit("Unmounting virtual machine disk...")
		if uerr := p.unmount(ctx, vm); uerr != nil {
			emit("Failed to unmount virtual machine disk: " + uerr.Error())
			if err == nil {
				err = uerr
			}
		}
		if err != nil && len(rep.Copied) > 0 {
			slog.Warn("driver files left in virtual machine image",
				slog.String("vm", vm),
				slog.Any("copied", rep.Copied))
		}
	}()

	gpuName := p.resolveGPUName(ctx, vm, emit)
	if gpuName == "" {
		return rep, gpuerrors.NewWithContext(gpuerrors.ErrCodeStepFailed,
			"unable to determine the GPU name: check that the VM has a GPU partition adapter and the host driver is healthy",
			map[string]any{"vm": vm})
	}
	rep.GPUName = gpuName
	emit("Target GPU: " + gpuName)

	emit("Copying GPU service driver...")
	serviceLines, serviceErr := p.host.CopyServiceDriver(ctx, gpuName, drive)
	p.record(rep, serviceLines, emit)
	if serviceErr != nil {
		p.warn(rep, "GPU service driver copy failed: "+serviceErr.Error(), emit)
	}

	emit("Copying signed driver files...")
	signedLines, signedErr := p.host.CopySignedDriverFiles(ctx, hyperv.SignedDriverCopy{
		GPUName:              gpuName,
		Drive:                drive,
		Lookups:              DriverLookups(gpuName, p.vendor),
		HostLibraries:        HostLibraries,
		StorePackagePatterns: StorePackagePatterns,
		StoreLibraries:       StoreLibraries,
	})
	p.record(rep, signedLines, emit)
	if signedErr != nil {
		p.warn(rep, "signed driver file copy incomplete: "+signedErr.Error(), emit)
	}

	if serviceErr != nil && signedErr != nil {
		return rep, gpuerrors.WrapWithContext(gpuerrors.ErrCodeStepFailed, "no driver files could be copied", signedErr,
			map[string]any{"vm": vm, "gpu": gpuName, "serviceDriverError": serviceErr.Error()})
	}

	if strings.Contains(strings.ToUpper(gpuName), p.vendor) {
		emit("Copying " + p.vendor + " support files...")
		lines, verr := p.host.CopyVendorSupport(ctx, drive)
		p.record(rep, lines, emit)
		if verr != nil {
			p.warn(rep, p.vendor+" support file copy failed: "+verr.Error(), emit)
		}
	}

	emit("Verifying driver files...")
	rep.Verification = Verify(p.imageFS(drive), gpuName)
	for _, f := range rep.Verification.Found {
		emit("[FOUND] " + f)
	}
	for _, f := range rep.Verification.Missing {
		emit("[MISSING] " + f)
	}
	switch rep.Verification.Status {
	case StatusOK:
		emit("Verification passed: all critical driver files are present")
	case StatusPartial:
		emit("Warning: some driver files are missing")
	default:
		emit("Error: verification failed, critical driver files are missing")
	}
	if rep.Verification.Status != StatusOK {
		verr := gpuerrors.NewWithContext(gpuerrors.ErrCodeVerificationIncomplete, "driver verification incomplete",
			map[string]any{"status": rep.Verification.Status, "missing": rep.Verification.Missing})
		slog.Warn(verr.Error(),
			slog.String("vm", vm),
			slog.String("status", string(rep.Verification.Status)))
	}

	return rep, nil
}

// nameStrategy resolves the GPU name; "" means no result.
type nameStrategy struct {
	name    string
	resolve func(ctx context.Context, vm string) (string, error)
}

func (p *Propagator) nameStrategies() []nameStrategy {
	return []nameStrategy{
		{name: "adapter instance path", resolve: p.nameFromAdapter},
		{name: "partitionable GPU", resolve: p.nameFromPartitionableGPU},
		{name: "vendor device", resolve: p.nameFromVendor},
	}
}

func (p *Propagator) resolveGPUName(ctx context.Context, vm string, emit func(string)) string {
	strategies := p.nameStrategies()
	for i, s := range strategies {
		name, err := s.resolve(ctx, vm)
		if err != nil {
			slog.Debug("GPU name strategy failed",
				slog.String("strategy", s.name),
				slog.String("error", err.Error()))
		}
		if name = strings.TrimSpace(name); name != "" {
			slog.Debug("resolved GPU name",
				slog.String("strategy", s.name),
				slog.String("gpu", name))
			return name
		}
		if i < len(strategies)-1 {
			emit(fmt.Sprintf("Warning: could not resolve the GPU name from the %s, trying next method...", s.name))
		}
	}
	return ""
}

func (p *Propagator) nameFromAdapter(ctx context.Context, vm string) (string, error) {
	a, err := p.host.GPUAdapter(ctx, vm)
	if err != nil || a == nil {
		return "", err
	}
	return p.nameByInstancePath(ctx, a.InstancePath)
}

func (p *Propagator) nameFromPartitionableGPU(ctx context.Context, vm string) (string, error) {
	a, err := p.host.GPUAdapter(ctx, vm)
	if err != nil || a == nil {
		return "", err
	}
	gpus, err := p.host.PartitionableGPUs(ctx)
	if err != nil {
		return "", err
	}
	for _, g := range gpus {
		if strings.EqualFold(g.InstancePath, a.InstancePath) {
			return p.nameByInstancePath(ctx, g.InstancePath)
		}
	}
	return "", nil
}

func (p *Propagator) nameFromVendor(ctx context.Context, _ string) (string, error) {
	return p.host.HealthyDeviceName(ctx, hyperv.PnPFieldName, "*"+p.vendor+"*")
}

func (p *Propagator) nameByInstancePath(ctx context.Context, instancePath string) (string, error) {
	id := hwid.Extract(strings.ToUpper(instancePath))
	if id == "" {
		return "", nil
	}
	return p.host.HealthyDeviceName(ctx, hyperv.PnPFieldInstanceID, "*"+id+"*")
}

// unmount releases the disk, retrying with a fixed delay. It ignores
// cancellation of ctx so the disk is released even after a caller gave up.
func (p *Propagator) unmount(ctx context.Context, vm string) error {
	ctx = context.WithoutCancel(ctx)

	var last error
	err := wait.ExponentialBackoffWithContext(ctx, p.backoff, func(ctx context.Context) (bool, error) {
		if last = p.host.DismountDisk(ctx, vm); last != nil {
			slog.Debug("unmount attempt failed",
				slog.String("vm", vm),
				slog.String("error", last.Error()))
			return false, nil
		}
		return true, nil
	})
	if err == nil {
		return nil
	}
	if last == nil {
		last = err
	}
	return gpuerrors.WrapWithContext(gpuerrors.ErrCodeStepFailed, "failed to unmount virtual machine disk", last,
		map[string]any{"vm": vm, "attempts": p.backoff.Steps})
}

// record emits the copy report lines and keeps the copied destinations.
func (p *Propagator) record(rep *Report, lines []string, emit func(string)) {
	for _, l := range lines {
		emit(l)
		switch {
		case strings.HasPrefix(l, "[PACKAGE]"), strings.HasPrefix(l, "[FILE]"),
			strings.HasPrefix(l, "[DLL]"), strings.HasPrefix(l, "[DLL_STORE]"):
			rep.Copied = append(rep.Copied, copiedTarget(l))
		case strings.HasPrefix(l, "[WARN]"):
			rep.Warnings = append(rep.Warnings, strings.TrimSpace(strings.TrimPrefix(l, "[WARN]")))
		}
	}
}

func (p *Propagator) warn(rep *Report, msg string, emit func(string)) {
	rep.Warnings = append(rep.Warnings, msg)
	emit("Warning: " + msg)
}

// copiedTarget returns the destination of a "[TAG] src -> dst" line, or the
// text after the tag when there is no arrow.
func copiedTarget(line string) string {
	_, rest, _ := strings.Cut(line, "] ")
	if _, dst, ok := strings.Cut(rest, " -> "); ok {
		return strings.TrimSpace(dst)
	}
	return strings.TrimSpace(rest)
}
