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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/smart-gpu-pv/gpupv/pkg/configurator"
	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"github.com/smart-gpu-pv/gpupv/pkg/discovery"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/hyperv"
	"github.com/smart-gpu-pv/gpupv/pkg/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gpuPath = `\\?\PCI#VEN_10DE&DEV_28A1#4&1#{064092b3}`

type fakeCatalog struct{}

func (fakeCatalog) Discover(context.Context) []discovery.DeviceRecord {
	return []discovery.DeviceRecord{{
		Name:         "NVIDIA GeForce RTX 4060",
		InstancePath: gpuPath,
		VRAM:         8 * defaults.GiB,
	}}
}

func (fakeCatalog) VirtualMachines(context.Context) []discovery.VMRecord {
	return []discovery.VMRecord{
		{VirtualMachine: hyperv.VirtualMachine{Name: "dev", State: hyperv.StateOff, GPUStatus: hyperv.GPUStatusOff}},
		{VirtualMachine: hyperv.VirtualMachine{Name: "legacy", State: hyperv.StateOff, GPUStatus: hyperv.GPUStatusNotSupported}},
	}
}

func (c fakeCatalog) LookupVM(ctx context.Context, name string) (discovery.VMRecord, error) {
	if vm, ok := discovery.FindVM(c.VirtualMachines(ctx), name); ok {
		return vm, nil
	}
	return discovery.VMRecord{}, gpuerrors.New(gpuerrors.ErrCodeNotFound, "virtual machine not found")
}

// fakeConfigurer plans for real and optionally blocks inside Apply.
type fakeConfigurer struct {
	entered chan struct{}
	release chan struct{}
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeConfigurer) Apply(ctx context.Context, catalog configurator.Catalog, in configurator.ApplyRequest, sink configurator.Sink) (*configurator.Plan, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	plan, err := configurator.MakePlan(ctx, catalog, in)
	if err != nil {
		return nil, err
	}
	sink("Stopping virtual machine...")
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	if f.err != nil {
		sink("Rolling back configuration...")
		return nil, f.err
	}
	sink("GPU-PV configuration completed successfully")
	return plan, nil
}

func (f *fakeConfigurer) Steps(configurator.Request) []string {
	return []string{configurator.StepStopVM, configurator.StepAddAdapter}
}

func newTestServer(c Configurer) *server.Server {
	h := NewHandlers(fakeCatalog{}, c, 1<<20)
	return server.New(server.WithHandler(h.Routes()))
}

func do(t *testing.T, s *server.Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleDevices(t *testing.T) {
	rec := do(t, newTestServer(&fakeConfigurer{}), http.MethodGet, PathDevices, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list DeviceList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "NVIDIA GeForce RTX 4060", list.Devices[0].Name)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestHandleVMs(t *testing.T) {
	rec := do(t, newTestServer(&fakeConfigurer{}), http.MethodGet, PathVMs, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list VMList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "dev", list.VMs[0].Name)
	assert.Equal(t, hyperv.GPUStatusNotSupported, list.VMs[1].GPUStatus)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeConfigurer{})

	rec := do(t, s, http.MethodPost, PathDevices, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))

	rec = do(t, s, http.MethodGet, PathConfigure, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) server.ErrorResponse {
	t.Helper()
	var resp server.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleConfigure(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		code    string
		outcome string
	}{
		{name: "enable", body: `{"vm":"dev","gpu":"NVIDIA GeForce RTX 4060","vramMB":4096}`, status: http.StatusOK, outcome: OutcomeConfigured},
		{name: "disable when off is a no-op", body: `{"vm":"dev","vramMB":0}`, status: http.StatusOK, outcome: OutcomeNoOp},
		{name: "malformed body", body: `{"vm":`, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "unknown field", body: `{"vm":"dev","vram":4096}`, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "missing vm", body: `{"vramMB":4096}`, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "unknown vm", body: `{"vm":"prod","gpu":"NVIDIA GeForce RTX 4060","vramMB":4096}`, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "generation 1", body: `{"vm":"legacy","gpu":"NVIDIA GeForce RTX 4060","vramMB":4096}`, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "above cap", body: `{"vm":"dev","gpu":"NVIDIA GeForce RTX 4060","vramMB":8000}`, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&fakeConfigurer{}), http.MethodPost, PathConfigure, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			if tt.code != "" {
				assert.Equal(t, tt.code, decodeError(t, rec).Code)
				return
			}
			var resp ConfigureResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.outcome, resp.Outcome)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestHandleConfigureEnableProgress(t *testing.T) {
	rec := do(t, newTestServer(&fakeConfigurer{}), http.MethodPost, PathConfigure,
		`{"vm":"dev","gpu":"NVIDIA GeForce RTX 4060","vramMB":4096}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConfigureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4096*defaults.MiB, resp.Request.VRAM)
	assert.Equal(t, gpuPath, resp.Request.InstancePath)
	assert.Equal(t, []string{"Stopping virtual machine...", "GPU-PV configuration completed successfully"}, resp.Progress)
}

func TestHandleConfigureFailureKeepsProgress(t *testing.T) {
	c := &fakeConfigurer{err: gpuerrors.NewWithContext(gpuerrors.ErrCodeStepFailed, "step configure-resources failed",
		map[string]any{"vm": "dev", "step": "configure-resources"})}

	rec := do(t, newTestServer(c), http.MethodPost, PathConfigure,
		`{"vm":"dev","gpu":"NVIDIA GeForce RTX 4060","vramMB":4096}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, "STEP_FAILED", resp.Code)
	assert.Equal(t, "configure-resources", resp.Details["step"])
	assert.Contains(t, resp.Details["progress"], "Rolling back configuration...")
}

func TestHandleConfigureDryRun(t *testing.T) {
	c := &fakeConfigurer{}
	rec := do(t, newTestServer(c), http.MethodPost, PathConfigure+"?dryRun=true",
		`{"vm":"dev","gpu":"NVIDIA GeForce RTX 4060","vramMB":2048}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConfigureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, OutcomePlanned, resp.Outcome)
	assert.Equal(t, []string{configurator.StepStopVM, configurator.StepAddAdapter}, resp.Steps)
	assert.Zero(t, c.calls)
}

func TestHandleConfigureConflict(t *testing.T) {
	c := &fakeConfigurer{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestServer(c)
	body := `{"vm":"dev","gpu":"NVIDIA GeForce RTX 4060","vramMB":4096}`

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, PathConfigure, strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		first <- rec
	}()
	<-c.entered

	// Same VM, different case.
	rec := do(t, s, http.MethodPost, PathConfigure, strings.Replace(body, `"dev"`, `"DEV"`, 1))
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "CONFLICT", resp.Code)
	assert.True(t, resp.Retryable)

	close(c.release)
	assert.Equal(t, http.StatusOK, (<-first).Code)

	// The lock is released with the first request.
	c.entered = nil
	rec = do(t, s, http.MethodPost, PathConfigure, body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVMLocks(t *testing.T) {
	l := newVMLocks()
	require.True(t, l.tryLock("Dev"))
	assert.False(t, l.tryLock("dev"))
	assert.True(t, l.tryLock("other"))
	assert.Equal(t, []string{"dev", "other"}, l.active())

	l.unlock("DEV")
	assert.True(t, l.tryLock("dev"))
}

func TestStatusListsConfiguringVMs(t *testing.T) {
	h := NewHandlers(fakeCatalog{}, &fakeConfigurer{}, 1<<20)
	assert.Empty(t, h.Status()["configuring"])

	require.True(t, h.locks.tryLock("Dev"))
	assert.Equal(t, []string{"dev"}, h.Status()["configuring"])
}
