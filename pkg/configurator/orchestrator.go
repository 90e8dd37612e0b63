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

package configurator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"github.com/smart-gpu-pv/gpupv/pkg/discovery"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
)

// Step names, also used as metric labels.
const (
	StepStopVM            = "stop-vm"
	StepDisableSecureBoot = "disable-secure-boot"
	StepBackup            = "backup"
	StepRemoveAdapter     = "remove-adapter"
	StepAddAdapter        = "add-adapter"
	StepConfigureResource = "configure-resources"
	StepEnableCacheTypes  = "enable-cache-types"
	StepConfigureMMIO     = "configure-mmio"
	StepCopyDrivers       = "copy-drivers"
	StepVerifyGuest       = "verify-guest"
	StepResetCacheTypes   = "reset-cache-types"
)

// onFailure says what a step failure does to the attempt.
type onFailure int

const (
	// abort ends the attempt; nothing needs restoring yet.
	abort onFailure = iota
	// rollback restores the backup and ends the attempt.
	rollback
	// proceed logs the failure and moves on.
	proceed
)

type step struct {
	name      string
	onFailure onFailure
	run       func(ctx context.Context, a *attempt) error
}

// attempt is the state of one Configure call.
type attempt struct {
	req    Request
	emit   func(string)
	backup *Backup
}

// Orchestrator runs configuration attempts against a host.
type Orchestrator struct {
	host    Host
	drivers DriverPropagator
}

// NewOrchestrator returns an Orchestrator using host for VM changes and
// drivers for driver propagation.
func NewOrchestrator(host Host, drivers DriverPropagator) *Orchestrator {
	return &Orchestrator{host: host, drivers: drivers}
}

// Steps returns the names of the steps a request runs, in order.
func (o *Orchestrator) Steps(req Request) []string {
	steps := o.steps(req)
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.name)
	}
	return names
}

func (o *Orchestrator) steps(req Request) []step {
	steps := []step{
		{name: StepStopVM, onFailure: abort, run: o.stopVM},
		{name: StepDisableSecureBoot, onFailure: proceed, run: o.disableSecureBoot},
		{name: StepBackup, onFailure: abort, run: o.captureBackup},
		{name: StepRemoveAdapter, onFailure: proceed, run: o.removeAdapter},
	}
	if !req.Enables() {
		return append(steps, step{name: StepResetCacheTypes, onFailure: rollback, run: o.resetCacheTypes})
	}
	return append(steps,
		step{name: StepAddAdapter, onFailure: rollback, run: o.addAdapter},
		step{name: StepConfigureResource, onFailure: rollback, run: o.configureResources},
		step{name: StepEnableCacheTypes, onFailure: rollback, run: o.enableCacheTypes},
		step{name: StepConfigureMMIO, onFailure: rollback, run: o.configureMMIO},
		step{name: StepCopyDrivers, onFailure: rollback, run: o.copyDrivers},
		step{name: StepVerifyGuest, onFailure: proceed, run: o.verifyGuest},
	)
}

// Configure applies req to the VM. It returns nil only when every required
// step succeeded. On failure after the backup step the VM's previous adapter
// and cache settings are restored before returning.
func (o *Orchestrator) Configure(ctx context.Context, req Request, sink Sink) error {
	if err := validate(req); err != nil {
		configureTotal.WithLabelValues(outcomeFailed).Inc()
		return err
	}

	a := &attempt{req: req, emit: emitter(sink)}
	// Host calls are never interrupted mid-flight; ctx is only consulted
	// between steps.
	hostCtx := context.WithoutCancel(ctx)

	slog.Info("configuring GPU-PV",
		slog.String("vm", req.VMName),
		slog.String("gpu", req.GPUName),
		slog.Uint64("vram", req.VRAM),
		slog.Bool("enable", req.Enables()))

	for _, s := range o.steps(req) {
		if err := ctx.Err(); err != nil {
			cerr := gpuerrors.WrapWithContext(gpuerrors.ErrCodeTimeout, "configuration canceled before step "+s.name, err,
				map[string]any{"vm": req.VMName, "step": s.name})
			a.emit("Configuration canceled: " + err.Error())
			if a.backup != nil {
				o.rollback(hostCtx, a)
			}
			configureTotal.WithLabelValues(outcomeCanceled).Inc()
			return cerr
		}

		start := time.Now()
		err := s.run(hostCtx, a)
		stepDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
		if err == nil {
			continue
		}

		slog.Warn("configuration step failed",
			slog.String("vm", req.VMName),
			slog.String("step", s.name),
			slog.String("error", err.Error()))

		switch s.onFailure {
		case proceed:
			a.emit(fmt.Sprintf("Warning: %s failed: %v", s.name, err))
			continue
		case abort:
			a.emit("Error: " + err.Error())
			configureTotal.WithLabelValues(outcomeFailed).Inc()
			return stepError(s.name, req.VMName, err)
		default:
			a.emit("Error: " + err.Error())
			a.emit("Rolling back configuration...")
			o.rollback(hostCtx, a)
			configureTotal.WithLabelValues(outcomeRolledBack).Inc()
			return stepError(s.name, req.VMName, err)
		}
	}

	if req.Enables() {
		a.emit("GPU-PV configuration completed successfully")
	} else {
		a.emit("GPU-PV disabled successfully")
	}
	configureTotal.WithLabelValues(outcomeSuccess).Inc()
	slog.Info("GPU-PV configured", slog.String("vm", req.VMName))
	return nil
}

func validate(req Request) error {
	if req.VMName == "" {
		return gpuerrors.New(gpuerrors.ErrCodeInvalidRequest, "VM name is required")
	}
	if req.Enables() && req.InstancePath == "" {
		return gpuerrors.NewWithContext(gpuerrors.ErrCodeInvalidRequest, "GPU instance path is required to enable GPU-PV",
			map[string]any{"vm": req.VMName})
	}
	return nil
}

// stepError marks err as a failed step unless it already is one.
func stepError(name, vm string, err error) error {
	if gpuerrors.CodeOf(err) == gpuerrors.ErrCodeStepFailed {
		return err
	}
	return gpuerrors.WrapWithContext(gpuerrors.ErrCodeStepFailed, "step "+name+" failed", err,
		map[string]any{"vm": vm, "step": name})
}

func (o *Orchestrator) rollback(ctx context.Context, a *attempt) {
	if err := o.Restore(ctx, a.req.VMName, a.backup, a.emit); err != nil {
		rollbackTotal.WithLabelValues("incomplete").Inc()
		a.emit("Rollback incomplete: " + err.Error())
		slog.Error("rollback incomplete",
			slog.String("vm", a.req.VMName),
			slog.String("error", err.Error()))
		return
	}
	rollbackTotal.WithLabelValues("restored").Inc()
	a.emit("Previous configuration restored")
}

func (o *Orchestrator) stopVM(ctx context.Context, a *attempt) error {
	a.emit("Stopping virtual machine...")
	state, err := o.host.VMState(ctx, a.req.VMName)
	if err != nil {
		return err
	}
	if state == hyperv.StateOff {
		a.emit("Virtual machine is already off")
		return nil
	}
	if err := o.host.StopVM(ctx, a.req.VMName); err != nil {
		return err
	}
	a.emit("Virtual machine stopped")
	return nil
}

func (o *Orchestrator) disableSecureBoot(ctx context.Context, a *attempt) error {
	a.emit("Disabling secure boot...")
	return o.host.DisableSecureBoot(ctx, a.req.VMName)
}

func (o *Orchestrator) captureBackup(ctx context.Context, a *attempt) error {
	a.emit("Backing up current configuration...")
	b, err := o.Backup(ctx, a.req.VMName)
	if err != nil {
		return err
	}
	a.backup = b
	return nil
}

func (o *Orchestrator) removeAdapter(ctx context.Context, a *attempt) error {
	a.emit("Removing existing GPU partition adapter...")
	return o.host.RemoveGPUAdapter(ctx, a.req.VMName)
}

func (o *Orchestrator) resetCacheTypes(ctx context.Context, a *attempt) error {
	a.emit(fmt.Sprintf("Requested VRAM is below %s, disabling GPU-PV...", discovery.FormatVRAM(defaults.MinEnableVRAM)))
	a.emit("Resetting guest controlled cache types...")
	return o.host.SetGuestControlledCacheTypes(ctx, a.req.VMName, false)
}

func (o *Orchestrator) addAdapter(ctx context.Context, a *attempt) error {
	a.emit("Adding GPU partition adapter...")
	if err := o.host.AddGPUAdapter(ctx, a.req.VMName, a.req.InstancePath); err != nil {
		return err
	}
	a.emit("GPU partition adapter added")
	return nil
}

func (o *Orchestrator) configureResources(ctx context.Context, a *attempt) error {
	a.emit(fmt.Sprintf("Configuring GPU resources (%s)...", discovery.FormatVRAM(a.req.VRAM)))
	return setResources(ctx, o.host, a.req.VMName, a.req.VRAM)
}

func setResources(ctx context.Context, host Host, vm string, vram uint64) error {
	b := hyperv.Bounds{Min: 1, Max: vram, Optimal: vram}
	for _, ch := range hyperv.Channels {
		if err := host.SetGPUResource(ctx, vm, ch, b); err != nil {
			return gpuerrors.WrapWithContext(gpuerrors.ErrCodeStepFailed, "failed to set "+string(ch)+" partition", err,
				map[string]any{"vm": vm, "channel": string(ch)})
		}
	}
	return nil
}

func (o *Orchestrator) enableCacheTypes(ctx context.Context, a *attempt) error {
	a.emit("Enabling guest controlled cache types...")
	return o.host.SetGuestControlledCacheTypes(ctx, a.req.VMName, true)
}

func (o *Orchestrator) configureMMIO(ctx context.Context, a *attempt) error {
	a.emit("Configuring memory mapped I/O space...")
	return o.host.SetMMIOSpace(ctx, a.req.VMName, defaults.LowMMIOSpace, defaults.HighMMIOSpace)
}

func (o *Orchestrator) copyDrivers(ctx context.Context, a *attempt) error {
	a.emit("Copying GPU driver files...")
	ctx, cancel := context.WithTimeout(ctx, defaults.PropagationTimeout)
	defer cancel()
	_, err := o.drivers.Propagate(ctx, a.req.VMName, a.emit)
	return err
}

func (o *Orchestrator) verifyGuest(ctx context.Context, a *attempt) error {
	a.emit("Checking virtual machine state...")
	state, err := o.host.VMState(ctx, a.req.VMName)
	if err != nil {
		return err
	}
	if state != hyperv.StateRunning {
		a.emit("Virtual machine is not running, skipping device verification")
		return nil
	}

	a.emit("Virtual machine is running, verifying GPU device in guest...")
	ctx, cancel := context.WithTimeout(ctx, defaults.GuestVerifyTimeout)
	defer cancel()
	status, err := o.host.GuestDeviceStatus(ctx, a.req.VMName)
	if err != nil {
		return err
	}
	if !status.Verified() {
		return gpuerrors.NewWithContext(gpuerrors.ErrCodeVerificationIncomplete, "guest device check: "+status.String(),
			map[string]any{"vm": a.req.VMName})
	}
	a.emit("Guest device check: " + status.String())
	return nil
}
