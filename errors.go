package ewf

import "github.com/go-ewf/ewf/internal/ewferr"

// Re-exported error machinery so callers can branch on failure kind
// without importing an internal package (spec.md section 7).
type (
	Error     = ewferr.Error
	ErrorCode = ewferr.Code
)

const (
	ErrCodeIO                = ewferr.CodeIO
	ErrCodeUnsupportedFormat = ewferr.CodeUnsupportedFormat
	ErrCodeCorruptSection    = ewferr.CodeCorruptSection
	ErrCodeCorruptTable      = ewferr.CodeCorruptTable
	ErrCodeDecompress        = ewferr.CodeDecompress
	ErrCodeChecksum          = ewferr.CodeChecksum
	ErrCodeMissingSegment    = ewferr.CodeMissingSegment
	ErrCodeWriteResumeNeeded = ewferr.CodeWriteResumeNeeded
	ErrCodeAborted           = ewferr.CodeAborted
	ErrCodeInvalidArgument   = ewferr.CodeInvalidArgument
)

// ErrAborted is returned by Acquire when the abort channel supplied via
// WithAcquireAbort or WithCreateAbort fires.
var ErrAborted = ewferr.Aborted

// IsCode reports whether err (or something it wraps) is a *ewf.Error with
// the given code.
func IsCode(err error, code ErrorCode) bool { return ewferr.IsCode(err, code) }
