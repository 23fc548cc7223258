// Package ewferr defines the typed error hierarchy spec.md section 7
// names: a base error carrying a stable Code plus structured detail
// fields, so callers can branch on the failure kind instead of parsing
// messages. Modeled on iamNilotpal/ignite's pkg/errors, trimmed to the
// codes this format actually raises.
package ewferr

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Code is a stable, programmatically-matchable error classification.
type Code string

const (
	CodeIO                Code = "IO"
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	CodeCorruptSection    Code = "CORRUPT_SECTION"
	CodeCorruptTable      Code = "CORRUPT_TABLE"
	CodeDecompress        Code = "DECOMPRESS_ERROR"
	CodeChecksum          Code = "CHECKSUM_ERROR"
	CodeMissingSegment    Code = "MISSING_SEGMENT"
	CodeWriteResumeNeeded Code = "WRITE_RESUME_NEEDED"
	CodeAborted           Code = "ABORTED"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
)

// Error is the common shape of every error this module raises: a Code, a
// human-readable message, an optional cause, and free-form details for
// logging.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// With attaches a detail field and returns e for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func new_(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IO wraps an underlying byte-I/O failure with the path and offset that
// failed, per spec.md's IoError{path,offset}.
func IO(path string, offset int64, cause error) *Error {
	return (&Error{Code: CodeIO, Message: "i/o failure", Cause: cause}).
		With("path", path).With("offset", offset)
}

func UnsupportedFormat(format string) *Error {
	return new_(CodeUnsupportedFormat, "unsupported segment format: %s", format)
}

func CorruptSection(segment string, offset int64, sectionType string) *Error {
	return (&Error{Code: CodeCorruptSection, Message: "section descriptor checksum invalid"}).
		With("segment", segment).With("offset", offset).With("type", sectionType)
}

func CorruptTable(segment string) *Error {
	return (&Error{Code: CodeCorruptTable, Message: "table and table2 both invalid"}).
		With("segment", segment)
}

func Decompress(chunk int, cause error) *Error {
	return (&Error{Code: CodeDecompress, Message: "chunk decompression failed", Cause: cause}).
		With("chunk", chunk)
}

func Checksum(chunk int, expected, actual uint32) *Error {
	return (&Error{Code: CodeChecksum, Message: "chunk checksum mismatch"}).
		With("chunk", chunk).With("expected", expected).With("actual", actual)
}

func MissingSegment(n int) *Error {
	return (&Error{Code: CodeMissingSegment, Message: "segment not found before done"}).
		With("segment_number", n)
}

func WriteResumeNeeded(path string) *Error {
	return (&Error{Code: CodeWriteResumeNeeded, Message: "image has no done section, resume required"}).
		With("path", path)
}

// Aborted is returned when a long-running operation's abort flag fires.
var Aborted = &Error{Code: CodeAborted, Message: "operation aborted"}

func InvalidArgument(format string, args ...any) *Error {
	return new_(CodeInvalidArgument, format, args...)
}

// Wrap attaches additional context to err while preserving Is/As chains,
// via x/xerrors the way distr1/distri wraps its own errors.
func Wrap(context string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", context, err)
}

// IsCode reports whether err, or something it wraps, is an *Error with the
// given code.
func IsCode(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
