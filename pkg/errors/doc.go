// Package errors provides structured error types for better observability
// and programmatic error handling across the application.
//
// Every failure that crosses a package boundary carries an ErrorCode. The
// discovery engine recovers ErrCodeProviderUnavailable locally, the
// configurator maps any failed host call (including ErrCodeTimeout) to
// ErrCodeStepFailed after rollback, and rollback or verification problems are
// reported with ErrCodeRollbackIncomplete and ErrCodeVerificationIncomplete.
//
// Example usage:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeStepFailed,
//	    "failed to add GPU partition adapter",
//	    cause,
//	    map[string]any{
//	        "vm":   vmName,
//	        "step": "add-adapter",
//	    },
//	)
//
//	if errors.IsCode(err, errors.ErrCodeNotFound) {
//	    // unknown VM or device
//	}
package errors
