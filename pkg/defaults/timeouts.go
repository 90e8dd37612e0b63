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

package defaults

import "time"

// Command timeouts for calls against the virtualization host.
const (
	// CommandTimeout bounds a single PowerShell invocation or management query.
	CommandTimeout = 60 * time.Second

	// QueryTimeout bounds a single native management query batch.
	QueryTimeout = 30 * time.Second

	// GuestVerifyTimeout bounds the in-guest device check, which may wait on
	// a remote session that never answers.
	GuestVerifyTimeout = 45 * time.Second
)

// Driver propagation timeouts and retry policy.
const (
	// UnmountAttempts is the number of dismount attempts before giving up.
	UnmountAttempts = 5

	// UnmountRetryDelay is the fixed delay between dismount attempts.
	UnmountRetryDelay = 500 * time.Millisecond

	// PropagationTimeout bounds the whole driver propagation sub-workflow.
	// Each host call inside it is still bounded by CommandTimeout.
	PropagationTimeout = 15 * time.Minute
)

// Server timeouts for HTTP server configuration.
const (
	// ServerReadTimeout is the maximum duration for reading request headers.
	ServerReadTimeout = 10 * time.Second

	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration for writing a response.
	// Configure requests block until the workflow finishes.
	ServerWriteTimeout = 20 * time.Minute

	// ServerIdleTimeout is the maximum duration to wait for the next request.
	ServerIdleTimeout = 120 * time.Second

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 30 * time.Second

	// DiscoveryHandlerTimeout is the timeout for device and VM listing requests.
	DiscoveryHandlerTimeout = 2 * time.Minute

	// ConfigureHandlerTimeout bounds a configure request. It stays below
	// ServerWriteTimeout so the outcome can still be written.
	ConfigureHandlerTimeout = 19 * time.Minute
)

// CLI timeouts for command-line operations.
const (
	// CLIConfigureTimeout is the default timeout for a configure run.
	CLIConfigureTimeout = 20 * time.Minute

	// CLIQueryTimeout is the default timeout for listing commands.
	CLIQueryTimeout = 3 * time.Minute
)
