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
	"errors"
	"log/slog"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
)

// Backup captures the VM's current adapter and cache settings.
func (o *Orchestrator) Backup(ctx context.Context, vm string) (*Backup, error) {
	adapter, err := o.host.GPUAdapter(ctx, vm)
	if err != nil {
		return nil, gpuerrors.WrapWithContext(gpuerrors.ErrCodeStepFailed, "failed to read GPU partition adapter", err,
			map[string]any{"vm": vm})
	}
	cache, err := o.host.GuestControlledCacheTypes(ctx, vm)
	if err != nil {
		return nil, gpuerrors.WrapWithContext(gpuerrors.ErrCodeStepFailed, "failed to read guest controlled cache types", err,
			map[string]any{"vm": vm})
	}

	b := &Backup{GuestControlledCacheTypes: cache}
	if adapter != nil {
		b.HasAdapter = true
		b.InstancePath = adapter.InstancePath
		b.VRAM = adapter.VRAM()
	}
	slog.Debug("captured configuration backup",
		slog.String("vm", vm),
		slog.Bool("hasAdapter", b.HasAdapter),
		slog.Bool("cacheTypes", b.GuestControlledCacheTypes))
	return b, nil
}

// Restore returns the VM to the backed up state: any adapter is removed, the
// backed up adapter and its VRAM are re-applied, and the cache flag is reset.
// Every sub-step is attempted; failures are emitted and returned together as
// a ROLLBACK_INCOMPLETE error. A nil backup means no adapter and the cache
// flag off.
func (o *Orchestrator) Restore(ctx context.Context, vm string, b *Backup, sink Sink) error {
	emit := emitter(sink)
	if b == nil {
		b = &Backup{}
	}

	var errs []error
	fail := func(msg string, err error) {
		emit("Rollback warning: " + msg + ": " + err.Error())
		errs = append(errs, err)
	}

	if err := o.host.RemoveGPUAdapter(ctx, vm); err != nil {
		fail("could not remove GPU partition adapter", err)
	}

	if b.HasAdapter && b.InstancePath != "" {
		emit("Rolling back: restoring GPU partition adapter...")
		if err := o.host.AddGPUAdapter(ctx, vm, b.InstancePath); err != nil {
			fail("could not restore adapter", err)
		} else if b.VRAM > 0 {
			if err := setResources(ctx, o.host, vm, b.VRAM); err != nil {
				fail("could not restore GPU resources", err)
			}
		}
	}

	emit("Rolling back: restoring guest controlled cache types...")
	if err := o.host.SetGuestControlledCacheTypes(ctx, vm, b.GuestControlledCacheTypes); err != nil {
		fail("could not restore guest controlled cache types", err)
	}

	if len(errs) > 0 {
		return gpuerrors.WrapWithContext(gpuerrors.ErrCodeRollbackIncomplete, "rollback incomplete", errors.Join(errs...),
			map[string]any{"vm": vm, "failures": len(errs)})
	}
	return nil
}
