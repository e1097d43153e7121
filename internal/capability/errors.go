package capability

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by capability providers.
var (
	// ErrTransient marks a failure that may resolve on retry: timeouts,
	// rate limits, network problems.
	ErrTransient = errors.New("transient capability failure")

	// ErrPermanent marks a failure that will not resolve on retry: input
	// rejected by the provider, authorization failures.
	ErrPermanent = errors.New("permanent capability failure")

	// ErrInvalidConfig is returned when a provider is constructed with an
	// invalid configuration.
	ErrInvalidConfig = errors.New("invalid provider configuration")

	// ErrUnsupportedCapability is returned when a provider is asked to
	// perform a capability it does not implement.
	ErrUnsupportedCapability = fmt.Errorf("%w: unsupported capability", ErrPermanent)
)

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

// IsTransient reports whether err should be retried. Context deadline
// expiry counts as transient: an attempt that timed out may succeed when
// repeated.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
