package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/embedding"
	"github.com/kozaktomas/facegate/internal/imaging"
)

// Stable machine-readable error codes returned to clients. Handlers map
// them to HTTP status codes; clients branch on them to tell "retake the
// photo" from "face found but rejected" from "server problem".
const (
	CodeImageDecode    = "image_decode_error"
	CodeNoFaceDetected = "no_face_detected"
	CodeAmbiguousFaces = "multiple_faces_ambiguous"
	CodeLowQuality     = "low_quality_image"
	CodeNotEnrolled    = "identity_not_enrolled"
	CodeTimeout        = "timeout"
	CodeUnavailable    = "extractor_unavailable"
	CodeNotFound       = "not_found"
	CodeInvalidRequest = "invalid_request"
	CodeInternal       = "internal_error"
)

// Error is the typed error returned by all service operations.
type Error struct {
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// wrapExtractError maps extraction pipeline failures to the error taxonomy.
// The deadline check runs first: a context that expired while waiting on the
// model server carries both DeadlineExceeded and ErrUnavailable, and timeout
// is the truthful report.
func wrapExtractError(err error) *Error {
	var lowQuality *embedding.LowQualityError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newError(CodeTimeout, "operation timed out", err)
	case errors.Is(err, context.Canceled):
		return newError(CodeTimeout, "request canceled", err)
	case errors.Is(err, imaging.ErrDecode):
		return newError(CodeImageDecode, "image could not be decoded", err)
	case errors.Is(err, embedding.ErrNoFaceDetected):
		return newError(CodeNoFaceDetected, "no face detected in the image", err)
	case errors.Is(err, embedding.ErrAmbiguousFaces):
		return newError(CodeAmbiguousFaces, "multiple faces of comparable size detected", err)
	case errors.As(err, &lowQuality):
		return newError(CodeLowQuality, lowQuality.Reason, err)
	case errors.Is(err, embedding.ErrUnavailable):
		return newError(CodeUnavailable, "face model server unavailable", err)
	default:
		return newError(CodeInternal, "embedding extraction failed", err)
	}
}

// outcomeFromError returns the metrics outcome label for a failed operation.
func outcomeFromError(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return CodeInternal
}
