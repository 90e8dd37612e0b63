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

package hyperv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/powershell"
)

const virtualizationNamespace = `root\virtualization\v2`

// ShellHost implements the capability set with PowerShell cmdlets.
type ShellHost struct {
	ps powershell.Runner
}

// NewShellHost returns a ShellHost running scripts through ps.
func NewShellHost(ps powershell.Runner) *ShellHost {
	return &ShellHost{ps: ps}
}

// run executes a script whose failure is a step failure.
func (h *ShellHost) run(ctx context.Context, op, script string) (*powershell.Result, error) {
	res, err := h.ps.Run(ctx, script)
	if err != nil {
		code := gpuerrors.ErrCodeStepFailed
		if gpuerrors.IsCode(err, gpuerrors.ErrCodeTimeout) {
			code = gpuerrors.ErrCodeTimeout
		}
		return res, gpuerrors.WrapWithContext(code, op+" failed", err,
			map[string]any{"output": powershell.Message(res)})
	}
	return res, nil
}

// query executes a read-only script; a failure means the shell provider
// cannot answer.
func (h *ShellHost) query(ctx context.Context, op, script string) (*powershell.Result, error) {
	res, err := h.ps.Run(ctx, script)
	if err != nil {
		return res, gpuerrors.Wrap(gpuerrors.ErrCodeProviderUnavailable, op+" failed", err)
	}
	return res, nil
}

// decodeList decodes ConvertTo-Json output that may be empty, a single
// object or an array.
func decodeList[T any](out string) ([]T, error) {
	out = strings.TrimSpace(out)
	if out == "" || out == "null" {
		return nil, nil
	}
	if strings.HasPrefix(out, "[") {
		var items []T
		if err := json.Unmarshal([]byte(out), &items); err != nil {
			return nil, fmt.Errorf("failed to decode json array: %w", err)
		}
		return items, nil
	}
	var item T
	if err := json.Unmarshal([]byte(out), &item); err != nil {
		return nil, fmt.Errorf("failed to decode json object: %w", err)
	}
	return []T{item}, nil
}

// psArray renders values as a PowerShell array of string literals.
func psArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, powershell.Quote(v))
	}
	return "@(" + strings.Join(quoted, ", ") + ")"
}

func psBool(b bool) string {
	if b {
		return "$true"
	}
	return "$false"
}
