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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
	req = req.WithContext(context.WithValue(req.Context(), contextKeyRequestID, "req-1"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, http.StatusBadRequest, gpuerrors.ErrCodeInvalidRequest, "bad", false,
		map[string]any{"field": "vm"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != "INVALID_REQUEST" || resp.Message != "bad" || resp.RequestID != "req-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Details["field"] != "vm" {
		t.Errorf("expected details to be kept, got %v", resp.Details)
	}
	if resp.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestWriteErrorGeneratesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusInternalServerError,
		gpuerrors.ErrCodeInternal, "boom", true, nil)

	if resp := decodeError(t, rec); resp.RequestID == "" {
		t.Error("expected a generated request id")
	}
}

func TestWriteErrorFromErr(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"invalid", gpuerrors.New(gpuerrors.ErrCodeInvalidRequest, "x"), http.StatusBadRequest, "INVALID_REQUEST", false},
		{"not found", gpuerrors.New(gpuerrors.ErrCodeNotFound, "x"), http.StatusNotFound, "NOT_FOUND", false},
		{"conflict", gpuerrors.New(gpuerrors.ErrCodeConflict, "x"), http.StatusConflict, "CONFLICT", true},
		{"timeout", gpuerrors.New(gpuerrors.ErrCodeTimeout, "x"), http.StatusGatewayTimeout, "TIMEOUT", true},
		{"step failed", gpuerrors.New(gpuerrors.ErrCodeStepFailed, "x"), http.StatusBadGateway, "STEP_FAILED", false},
		{"provider", gpuerrors.New(gpuerrors.ErrCodeProviderUnavailable, "x"), http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", true},
		{"wrapped", fmt.Errorf("outer: %w", gpuerrors.New(gpuerrors.ErrCodeNotFound, "x")), http.StatusNotFound, "NOT_FOUND", false},
		{"plain", errors.New("plain"), http.StatusInternalServerError, "INTERNAL", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteErrorFromErr(rec, httptest.NewRequest(http.MethodPost, "/", nil), tt.err, nil)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, resp.Code)
			}
			if resp.Retryable != tt.retryable {
				t.Errorf("expected retryable %v, got %v", tt.retryable, resp.Retryable)
			}
		})
	}
}

func TestWriteErrorFromErrMergesContext(t *testing.T) {
	err := gpuerrors.NewWithContext(gpuerrors.ErrCodeStepFailed, "step add-adapter failed",
		map[string]any{"vm": "dev", "step": "add-adapter"})
	rec := httptest.NewRecorder()

	WriteErrorFromErr(rec, httptest.NewRequest(http.MethodPost, "/", nil), err,
		map[string]any{"progress": []string{"Stopping virtual machine..."}})

	resp := decodeError(t, rec)
	if resp.Details["vm"] != "dev" || resp.Details["step"] != "add-adapter" {
		t.Errorf("expected error context in details, got %v", resp.Details)
	}
	if _, ok := resp.Details["progress"]; !ok {
		t.Errorf("expected caller details, got %v", resp.Details)
	}
}
