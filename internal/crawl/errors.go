package crawl

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy of the pipeline. Callers
// discriminate with errors.Is to render distinct user-visible messages:
// quota exhaustion is a "try later" condition, invalid parameters are a
// caller bug, everything else is a generic transport failure.
var (
	// ErrQuotaExceeded indicates the content API rejected the request
	// because the usage quota is exhausted.
	ErrQuotaExceeded = errors.New("api quota exceeded")

	// ErrInvalidRequest indicates malformed or out-of-range parameters.
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrNotFound indicates a referenced search, graph or entity id is
	// absent from storage.
	ErrNotFound = errors.New("not found")

	// ErrUnknownAlgorithm indicates a ranking request named an algorithm
	// outside the supported set.
	ErrUnknownAlgorithm = errors.New("unknown ranking algorithm")

	// ErrDuplicate indicates an id-keyed insert hit an existing record.
	// Stores recover it locally; it never propagates past the storage layer.
	ErrDuplicate = errors.New("duplicate record")
)

// APIError wraps a content API failure with enough context to decide whether
// the whole crawl should abort or be retried later. It unwraps to
// ErrQuotaExceeded or ErrInvalidRequest when the API reported those
// conditions, otherwise it represents a transport failure.
type APIError struct {
	RequestType RequestType
	StatusCode  int
	Reason      string
	Err         error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s request failed: status %d (%s)", e.RequestType, e.StatusCode, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.RequestType, e.Err)
	}
	return fmt.Sprintf("%s request failed: status %d", e.RequestType, e.StatusCode)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsQuotaExceeded reports whether err represents quota exhaustion.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
