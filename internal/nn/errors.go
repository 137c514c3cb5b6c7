// Package nn implements grouped 2-D convolution and deconvolution layers
// lowered to GEMM on a host or accelerator backend.
package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/convcore/internal/tensor"
)

// Error kinds. Every error returned by a layer wraps exactly one of them.
var (
	// ErrInvalidConfiguration reports geometry, weight, bias or group settings
	// that cannot describe a valid layer.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrShapeMismatch reports inputs that disagree with each other or with
	// the shapes of the last Allocate.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnsupportedBackend reports an operation the selected backend has no
	// realization of, or an accelerator request it cannot serve.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrBackend reports a failure inside a backend call (device loss,
	// readback failure).
	ErrBackend = errors.New("backend failure")
)

// LayerError provides detailed information about a layer failure.
type LayerError struct {
	Op      string // Operation that failed (e.g., "conv.allocate")
	Kind    error  // One of the Err* kinds above
	Details string // Additional details
	Err     error  // Underlying cause, if any
}

// Error implements the error interface.
func (e *LayerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Details)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *LayerError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(op string, kind error, format string, args ...any) error {
	return &LayerError{Op: op, Kind: kind, Details: fmt.Sprintf(format, args...)}
}

// backendError classifies an error returned by a backend call.
func backendError(op, what string, err error) error {
	kind := ErrBackend
	if errors.Is(err, tensor.ErrNotImplemented) {
		kind = ErrUnsupportedBackend
	}
	return &LayerError{Op: op, Kind: kind, Details: what, Err: err}
}
