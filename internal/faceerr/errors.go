// Package faceerr defines the closed set of error kinds produced by the face
// indexing and matching engine. Every error carries a kind, the operation that
// failed, and a retryable flag so callers can tell a bad upload apart from a
// permanently unavailable model.
package faceerr

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors.
type Kind string

const (
	// KindModelUnavailable means a detector or embedder artifact failed to load.
	KindModelUnavailable Kind = "MODEL_UNAVAILABLE"
	// KindImageDecode means the image bytes could not be decoded.
	KindImageDecode Kind = "IMAGE_DECODE"
	// KindFaceCrop means a detected box could not be cropped from its image.
	KindFaceCrop Kind = "FACE_CROP"
	// KindEmbedding means the embedding forward pass failed for one face.
	KindEmbedding Kind = "EMBEDDING"
	// KindNoFaceDetected means the detector found no face. It is an outcome, not a failure.
	KindNoFaceDetected Kind = "NO_FACE_DETECTED"
	// KindDimensionMismatch means two descriptors of different length were compared.
	KindDimensionMismatch Kind = "DIMENSION_MISMATCH"
	// KindEngineDisabled means the inference context is disabled.
	KindEngineDisabled Kind = "ENGINE_DISABLED"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{
	KindModelUnavailable,
	KindImageDecode,
	KindFaceCrop,
	KindEmbedding,
	KindNoFaceDetected,
	KindDimensionMismatch,
	KindEngineDisabled,
}

// Error is the structured error type used by the engine packages.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Message)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Retryable: isRetryable(kind),
	}
}

// Wrap creates an error of the given kind wrapping cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(kind),
	}
}

// Sentinel returns a bare error of the given kind, suitable as an errors.Is target.
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf extracts the kind from an error chain.
// Returns an empty kind if err is not an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// Model and dimension problems are configuration errors and never retryable.
func isRetryable(kind Kind) bool {
	switch kind {
	case KindImageDecode, KindFaceCrop, KindEmbedding, KindNoFaceDetected:
		return true
	default:
		return false
	}
}
