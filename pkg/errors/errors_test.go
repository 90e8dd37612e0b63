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

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotFound, "virtual machine not found")

	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Message != "virtual machine not found" {
		t.Errorf("expected message 'virtual machine not found', got %s", err.Message)
	}
	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(ErrCodeStepFailed, "add adapter failed", cause)

	if err.Code != ErrCodeStepFailed {
		t.Errorf("expected code %s, got %s", ErrCodeStepFailed, err.Code)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped")
	}
}

func TestWrapWithContext(t *testing.T) {
	cause := errors.New("deadline exceeded")
	ctx := map[string]any{
		"vm":   "dev-box",
		"step": "configure-resources",
	}

	err := WrapWithContext(ErrCodeTimeout, "powershell call timed out", cause, ctx)

	if err.Code != ErrCodeTimeout {
		t.Errorf("expected code %s, got %s", ErrCodeTimeout, err.Code)
	}
	if err.Context == nil {
		t.Fatal("expected context to be set")
	}
	if err.Context["vm"] != "dev-box" {
		t.Errorf("expected vm to be dev-box")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      *StructuredError
		expected string
	}{
		{
			name:     "without cause",
			err:      New(ErrCodeInvalidRequest, "vram must be positive"),
			expected: "[INVALID_REQUEST] vram must be positive",
		},
		{
			name:     "with cause",
			err:      Wrap(ErrCodeProviderUnavailable, "wmi query failed", errors.New("access denied")),
			expected: "[PROVIDER_UNAVAILABLE] wmi query failed: access denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"structured", New(ErrCodeNotFound, "missing"), ErrCodeNotFound},
		{"fmt wrapped", fmt.Errorf("outer: %w", New(ErrCodeTimeout, "slow")), ErrCodeTimeout},
		{"outermost wins", Wrap(ErrCodeStepFailed, "step", New(ErrCodeTimeout, "slow")), ErrCodeStepFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	inner := New(ErrCodeTimeout, "slow")
	err := fmt.Errorf("configure: %w", Wrap(ErrCodeStepFailed, "step failed", inner))

	if !IsCode(err, ErrCodeStepFailed) {
		t.Errorf("expected STEP_FAILED in chain")
	}
	if !IsCode(err, ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT in chain")
	}
	if IsCode(err, ErrCodeNotFound) {
		t.Errorf("did not expect NOT_FOUND in chain")
	}
	if IsCode(nil, ErrCodeInternal) {
		t.Errorf("nil error must not match")
	}
}

func TestRetryable(t *testing.T) {
	retryable := []ErrorCode{ErrCodeConflict, ErrCodeTimeout, ErrCodeProviderUnavailable, ErrCodeInternal}
	final := []ErrorCode{ErrCodeInvalidRequest, ErrCodeNotFound, ErrCodeStepFailed, ErrCodeRollbackIncomplete}

	for _, c := range retryable {
		if !c.Retryable() {
			t.Errorf("expected %s to be retryable", c)
		}
	}
	for _, c := range final {
		if c.Retryable() {
			t.Errorf("expected %s not to be retryable", c)
		}
	}
}

func TestContextOf(t *testing.T) {
	if ContextOf(errors.New("plain")) != nil {
		t.Error("expected nil context for a plain error")
	}

	inner := NewWithContext(ErrCodeStepFailed, "add adapter failed", map[string]any{"step": "add-adapter", "vm": "inner"})
	outer := WrapWithContext(ErrCodeRollbackIncomplete, "rollback incomplete", fmt.Errorf("restore: %w", inner),
		map[string]any{"vm": "dev"})

	got := ContextOf(outer)
	if got["vm"] != "dev" {
		t.Errorf("expected outer vm to win, got %v", got["vm"])
	}
	if got["step"] != "add-adapter" {
		t.Errorf("expected inner step, got %v", got["step"])
	}
}
