package llm

import (
	"context"
	"errors"
	"fmt"
)

// Generator is the single capability the orchestrator needs from a model
// provider: turn a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrorKind separates failures worth retrying from those that are not.
type ErrorKind int

const (
	Transient ErrorKind = iota
	Permanent
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ProviderError is returned by every Generator implementation in this
// package. StatusCode is zero when the failure happened before an HTTP
// response was received.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s provider error (%d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s provider error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a transient ProviderError.
// Context cancellation is never transient: the caller gave up.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == Transient
	}
	return false
}

func transientErr(provider string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: Transient, StatusCode: status, Err: err}
}

func permanentErr(provider string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: Permanent, StatusCode: status, Err: err}
}

// kindForStatus maps an HTTP status to an error class: throttling and
// server-side faults are transient, everything else is the caller's fault.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 408, status == 429:
		return Transient
	case status >= 500:
		return Transient
	default:
		return Permanent
	}
}
