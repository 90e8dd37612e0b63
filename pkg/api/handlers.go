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

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/smart-gpu-pv/gpupv/pkg/configurator"
	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"github.com/smart-gpu-pv/gpupv/pkg/discovery"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/serializer"
	"github.com/smart-gpu-pv/gpupv/pkg/server"
)

// Route paths.
const (
	PathDevices   = "/v1/devices"
	PathVMs       = "/v1/vms"
	PathConfigure = "/v1/configure"
)

// Configure outcomes.
const (
	OutcomeConfigured = "configured"
	OutcomeDisabled   = "disabled"
	OutcomeNoOp       = "noop"
	OutcomePlanned    = "planned"
)

// Configurer applies planned requests. *configurator.Orchestrator
// implements it.
type Configurer interface {
	Apply(ctx context.Context, catalog configurator.Catalog, in configurator.ApplyRequest, sink configurator.Sink) (*configurator.Plan, error)
	Steps(req configurator.Request) []string
}

// DeviceList is the body of GET /v1/devices.
type DeviceList struct {
	Devices   []discovery.DeviceRecord `json:"devices"`
	Count     int                      `json:"count"`
	Timestamp time.Time                `json:"timestamp"`
}

// VMList is the body of GET /v1/vms.
type VMList struct {
	VMs       []discovery.VMRecord `json:"vms"`
	Count     int                  `json:"count"`
	Timestamp time.Time            `json:"timestamp"`
}

// ConfigureResponse is the body of a successful POST /v1/configure.
type ConfigureResponse struct {
	RequestID string               `json:"requestId"`
	Outcome   string               `json:"outcome"`
	Reason    string               `json:"reason,omitempty"`
	Request   configurator.Request `json:"request"`
	Steps     []string             `json:"steps,omitempty"`
	Progress  []string             `json:"progress"`
	Timestamp time.Time            `json:"timestamp"`
}

// Handlers serves the domain routes.
type Handlers struct {
	catalog      configurator.Catalog
	configurer   Configurer
	locks        *vmLocks
	maxBodyBytes int64
}

// NewHandlers returns handlers reading from catalog and applying through
// configurer.
func NewHandlers(catalog configurator.Catalog, configurer Configurer, maxBodyBytes int64) *Handlers {
	return &Handlers{
		catalog:      catalog,
		configurer:   configurer,
		locks:        newVMLocks(),
		maxBodyBytes: maxBodyBytes,
	}
}

// Routes maps paths to handlers for server.WithHandler.
func (h *Handlers) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		PathDevices:   h.HandleDevices,
		PathVMs:       h.HandleVMs,
		PathConfigure: h.HandleConfigure,
	}
}

// Status reports the VMs with a configure run in progress.
func (h *Handlers) Status() map[string]any {
	return map[string]any{"configuring": h.locks.active()}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	server.WriteError(w, r, http.StatusMethodNotAllowed, gpuerrors.ErrCodeMethodNotAllowed,
		"Method not allowed", false, map[string]any{"method": r.Method})
}

// HandleDevices lists partitionable GPUs.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), defaults.DiscoveryHandlerTimeout)
	defer cancel()

	devices := h.catalog.Discover(ctx)
	w.Header().Set("Cache-Control", "no-store")
	serializer.RespondJSON(w, http.StatusOK, DeviceList{
		Devices:   devices,
		Count:     len(devices),
		Timestamp: time.Now().UTC(),
	})
}

// HandleVMs lists virtual machines.
func (h *Handlers) HandleVMs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), defaults.DiscoveryHandlerTimeout)
	defer cancel()

	vms := h.catalog.VirtualMachines(ctx)
	w.Header().Set("Cache-Control", "no-store")
	serializer.RespondJSON(w, http.StatusOK, VMList{
		VMs:       vms,
		Count:     len(vms),
		Timestamp: time.Now().UTC(),
	})
}

// progress collects sink lines for the response.
type progress struct {
	mu    sync.Mutex
	lines []string
}

func (p *progress) sink(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, line)
}

func (p *progress) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.lines...)
}

// HandleConfigure plans and applies a configuration request.
func (h *Handlers) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var in configurator.ApplyRequest
	if err := serializer.DecodeJSONBody(w, r, h.maxBodyBytes, &in); err != nil {
		server.WriteError(w, r, http.StatusBadRequest, gpuerrors.ErrCodeInvalidRequest,
			"Invalid configure request", false, map[string]any{"error": err.Error()})
		return
	}
	if in.VMName == "" {
		server.WriteError(w, r, http.StatusBadRequest, gpuerrors.ErrCodeInvalidRequest,
			"VM name is required", false, nil)
		return
	}

	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dryRun"))
	requestID := server.RequestID(r.Context())

	if dryRun {
		h.plan(w, r, in, requestID)
		return
	}

	if !h.locks.tryLock(in.VMName) {
		server.WriteErrorFromErr(w, r,
			gpuerrors.NewWithContext(gpuerrors.ErrCodeConflict, "virtual machine is being configured",
				map[string]any{"vm": in.VMName}),
			map[string]any{"active": h.locks.active()})
		return
	}
	defer h.locks.unlock(in.VMName)

	ctx, cancel := context.WithTimeout(r.Context(), defaults.ConfigureHandlerTimeout)
	defer cancel()

	slog.Info("configure request",
		slog.String("requestID", requestID),
		slog.String("vm", in.VMName),
		slog.String("gpu", in.GPU),
		slog.Uint64("vramMB", in.VRAMMB),
		slog.Bool("force", in.Force))

	prog := &progress{}
	plan, err := h.configurer.Apply(ctx, h.catalog, in, prog.sink)
	if err != nil {
		server.WriteErrorFromErr(w, r, err, map[string]any{"progress": prog.snapshot()})
		return
	}

	resp := ConfigureResponse{
		RequestID: requestID,
		Outcome:   outcomeOf(plan),
		Reason:    plan.Reason,
		Request:   plan.Request,
		Progress:  prog.snapshot(),
		Timestamp: time.Now().UTC(),
	}
	serializer.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) plan(w http.ResponseWriter, r *http.Request, in configurator.ApplyRequest, requestID string) {
	ctx, cancel := context.WithTimeout(r.Context(), defaults.DiscoveryHandlerTimeout)
	defer cancel()

	plan, err := configurator.MakePlan(ctx, h.catalog, in)
	if err != nil {
		server.WriteErrorFromErr(w, r, err, nil)
		return
	}

	resp := ConfigureResponse{
		RequestID: requestID,
		Outcome:   OutcomePlanned,
		Reason:    plan.Reason,
		Request:   plan.Request,
		Progress:  []string{},
		Timestamp: time.Now().UTC(),
	}
	if plan.NoOp {
		resp.Outcome = OutcomeNoOp
	} else {
		resp.Steps = h.configurer.Steps(plan.Request)
	}
	serializer.RespondJSON(w, http.StatusOK, resp)
}

func outcomeOf(plan *configurator.Plan) string {
	switch {
	case plan.NoOp:
		return OutcomeNoOp
	case plan.Request.Enables():
		return OutcomeConfigured
	default:
		return OutcomeDisabled
	}
}
