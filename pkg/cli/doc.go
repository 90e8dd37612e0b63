/*
Copyright © 2025 The gpupv Authors
SPDX-License-Identifier: Apache-2.0
*/
// Package cli implements the gpupv command line.
//
// # Commands
//
//	gpupv devices   [--format table|json|yaml] [--output FILE]
//	gpupv vms       [--format ...] [--output FILE]
//	gpupv check     [--strict]
//	gpupv configure --vm NAME [--gpu NAME|PATH] --vram MB [--force] [--dry-run]
//	gpupv configure --request FILE [--dry-run]
//	gpupv start     --vm NAME
//	gpupv stop      --vm NAME
//
// Global flags:
//
//	--config FILE     YAML settings (also GPUPV_CONFIG), see pkg/config
//	--log-level LEVEL debug, info, warn, error (also LOG_LEVEL)
//
// Listing and check output goes to stdout in the selected format. The
// configure command writes progress lines to stderr and the outcome to
// stdout. Any failure exits non-zero with the structured error, which
// carries its code (e.g. [STEP_FAILED], [NOT_FOUND]).
package cli
