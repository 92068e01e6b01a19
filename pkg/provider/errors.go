package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider operations.
var (
	// ErrDeviceNotFound indicates the named device does not exist.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrJobNotFound indicates the job id is not queued on the device.
	ErrJobNotFound = errors.New("job not found")

	// ErrAccessDenied indicates insufficient privileges for the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrProviderUnavailable indicates the spooler service cannot be reached.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrUnsupportedCommand indicates the provider cannot apply the command.
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrHandleClosed indicates the handle was closed or never issued.
	ErrHandleClosed = errors.New("handle closed")
)

// ProviderError wraps provider-specific errors with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "Open", "EnumerateJobs").
	Op string

	// Provider is the provider kind.
	Provider Kind

	// Device is the device name, if applicable.
	Device string

	// JobID is the job id, if applicable.
	JobID int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.JobID != 0 {
		return fmt.Sprintf("%s %s: %s job %d: %v", e.Provider, e.Op, e.Device, e.JobID, e.Err)
	}
	if e.Device != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Device, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsDeviceNotFound returns true if the error indicates a missing device.
func IsDeviceNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}

// IsJobNotFound returns true if the error indicates a missing job.
func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient privileges.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsProviderUnavailable returns true if the spooler cannot be reached.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsUnsupported returns true if the command is not supported by the provider.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedCommand)
}
