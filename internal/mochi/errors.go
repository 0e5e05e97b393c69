package mochi

import "fmt"

// Kind classifies a remote card service failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindRateLimited
	KindNotFound
	KindUnavailable
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// APIError is a classified failure from the remote card service.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("mochi: %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("mochi: %s: %s", e.Kind, e.Message)
}

// Transient reports whether the failure is worth retrying after a delay.
// Auth failures and deleted resources are permanent.
func (e *APIError) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// DecodeError reports a response body that did not match the expected shape.
type DecodeError struct {
	What  string
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mochi: decoding %s: %v", e.What, e.Cause)
	}
	return fmt.Sprintf("mochi: decoding %s", e.What)
}

func (e *DecodeError) Unwrap() error { return e.Cause }
