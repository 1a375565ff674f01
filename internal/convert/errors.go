package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrorKind classifies conversion failures.
type ErrorKind string

const (
	KindInvalidSource ErrorKind = "invalid_source"
	KindNoFrames      ErrorKind = "no_frames_extracted"
	KindEncode        ErrorKind = "encode_error"
	KindConfiguration ErrorKind = "configuration_error"
	KindCancelled     ErrorKind = "cancelled"
)

var (
	ErrInvalidSource     = errors.New("invalid source video")
	ErrNoFramesExtracted = errors.New("no frames extracted")
	ErrEncode            = errors.New("encode failed")
	ErrConfiguration     = errors.New("invalid conversion settings")
	ErrCancelled         = errors.New("conversion cancelled")
)

// Error is a kind-aware conversion failure with optional source context.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error formats conversion failures for logs and status messages.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Source != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, filepath.Base(e.Source), msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel error of the same kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return target != nil && target == sentinel(e.Kind)
}

func sentinel(kind ErrorKind) error {
	switch kind {
	case KindInvalidSource:
		return ErrInvalidSource
	case KindNoFrames:
		return ErrNoFramesExtracted
	case KindEncode:
		return ErrEncode
	case KindConfiguration:
		return ErrConfiguration
	case KindCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// KindOf maps err to its kind, or "" if it is not a conversion error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Kind
	}
	for _, kind := range []ErrorKind{KindInvalidSource, KindNoFrames, KindEncode, KindConfiguration, KindCancelled} {
		if errors.Is(err, sentinel(kind)) {
			return kind
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return ""
}

// classify keeps an existing kind on err or attaches fallback.
func classify(fallback ErrorKind, source, message string, err error) error {
	var cErr *Error
	if errors.As(err, &cErr) {
		if cErr.Source == "" {
			cErr.Source = source
		}
		return cErr
	}

	kind := KindOf(err)
	if kind == "" {
		kind = fallback
	}
	return &Error{Kind: kind, Source: source, Message: message, Err: err}
}

func configError(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}
