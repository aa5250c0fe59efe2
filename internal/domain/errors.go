package domain

import (
	"errors"
	"fmt"
)

// ConfigurationError reports missing or unusable configuration (absent DKIM
// key, empty server pool). Fatal at startup, never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// TransportError reports an SMTP-level failure (connect, auth, send). Retried
// with backoff and server failover up to the attempt ceiling.
type TransportError struct {
	Server string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Server, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports bad input (malformed spintax, invalid email or
// phone). Rejected before any send attempt and returned to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// TrackingResolutionError reports an unknown tracking token or link id. Always
// swallowed at the HTTP boundary; the pixel/redirect response is still served.
type TrackingResolutionError struct {
	Kind string // "token" or "link"
	ID   string
}

func (e *TrackingResolutionError) Error() string {
	return fmt.Sprintf("tracking: unknown %s %q", e.Kind, e.ID)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTrackingResolution reports whether err is a TrackingResolutionError.
func IsTrackingResolution(err error) bool {
	var te *TrackingResolutionError
	return errors.As(err, &te)
}
