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

package powershell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DefaultBinary is the Windows PowerShell executable.
	DefaultBinary = "powershell.exe"

	utf8Prelude = "[Console]::OutputEncoding = [System.Text.Encoding]::UTF8; "

	// processWaitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after the process itself exited or was killed.
	processWaitDelay = 5 * time.Second
)

// Result holds the decoded and trimmed output of one invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Lines returns the non-empty, trimmed lines of Stdout.
func (r *Result) Lines() []string {
	if r == nil {
		return nil
	}
	return SplitLines(r.Stdout)
}

// Runner runs a script and reports its result. Implementations must treat a
// non-zero exit code as an error and still return the captured Result.
type Runner interface {
	Run(ctx context.Context, script string) (*Result, error)
}

// Executor runs scripts through a PowerShell process.
type Executor struct {
	binary  string
	timeout time.Duration
	args    func(script string) []string
}

// Option configures an Executor.
type Option func(*Executor)

// WithBinary overrides the PowerShell executable (e.g. pwsh.exe).
func WithBinary(path string) Option {
	return func(e *Executor) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithArgs overrides how the script is turned into process arguments.
func WithArgs(fn func(script string) []string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.args = fn
		}
	}
}

// NewExecutor returns an Executor with the default binary and timeout.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		binary:  DefaultBinary,
		timeout: defaults.CommandTimeout,
		args:    defaultArgs,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultArgs(script string) []string {
	return []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", utf8Prelude + script}
}

// Run executes script and waits for it to finish or time out.
func (e *Executor) Run(ctx context.Context, script string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := e.run(ctx, script)
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(string(gpuerrors.CodeOf(err)))
	}
	commandDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	return res, err
}

func (e *Executor) run(ctx context.Context, script string) (*Result, error) {
	cmd := exec.CommandContext(ctx, e.binary, e.args(script)...)
	cmd.WaitDelay = processWaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeInternal, "failed to open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeInternal, "failed to open stderr pipe", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, gpuerrors.Wrap(gpuerrors.ErrCodeInternal, "failed to start "+e.binary, err)
	}

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, rerr := io.Copy(&outBuf, stdout)
		return rerr
	})
	g.Go(func() error {
		_, rerr := io.Copy(&errBuf, stderr)
		return rerr
	})
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	res := &Result{
		Stdout:   decode(outBuf.Bytes()),
		Stderr:   decode(errBuf.Bytes()),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, gpuerrors.WrapWithContext(gpuerrors.ErrCodeTimeout,
			fmt.Sprintf("powershell call exceeded %s", e.timeout), ctx.Err(),
			map[string]any{"stderr": res.Stderr})
	}
	if ctx.Err() != nil {
		return res, gpuerrors.Wrap(gpuerrors.ErrCodeInternal, "powershell call canceled", ctx.Err())
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, gpuerrors.Wrap(gpuerrors.ErrCodeInternal, "failed waiting for powershell", waitErr)
		}
		slog.Debug("powershell exited with error",
			slog.Int("exitCode", res.ExitCode),
			slog.String("stderr", res.Stderr))
		return res, gpuerrors.NewWithContext(gpuerrors.ErrCodeInternal,
			fmt.Sprintf("powershell exited with code %d: %s", res.ExitCode, Message(res)),
			map[string]any{"exitCode": res.ExitCode, "stderr": res.Stderr})
	}
	if drainErr != nil {
		return res, gpuerrors.Wrap(gpuerrors.ErrCodeInternal, "failed reading powershell output", drainErr)
	}

	return res, nil
}

// decode strips a leading byte order mark, switching to UTF-16 when the BOM
// says so, and trims surrounding whitespace.
func decode(b []byte) string {
	s, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), b)
	if err != nil {
		return strings.TrimSpace(string(b))
	}
	return strings.TrimSpace(string(s))
}

// Message returns the most useful diagnostic text of a failed call.
func Message(r *Result) string {
	if r == nil {
		return ""
	}
	if r.Stderr != "" {
		return firstLine(r.Stderr)
	}
	return firstLine(r.Stdout)
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// Output runs script and returns its stdout, ignoring failures. It is meant
// for best-effort probes whose absence of output is itself the answer.
func Output(ctx context.Context, r Runner, script string) string {
	res, err := r.Run(ctx, script)
	if err != nil {
		slog.Debug("best-effort powershell call failed", slog.String("error", err.Error()))
	}
	if res == nil {
		return ""
	}
	return res.Stdout
}

// SplitLines splits s into trimmed, non-empty lines.
func SplitLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Quote renders s as a single-quoted PowerShell string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
