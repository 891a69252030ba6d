package fitview

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrorCategory tags every FitDecodeError raised by this package.
const ErrorCategory = "fit-decode"

// Kind classifies decode failures.
type Kind string

const (
	KindInput     Kind = "input"
	KindLibrary   Kind = "library"
	KindIntegrity Kind = "integrity"
	KindDecode    Kind = "decode"
	KindEmpty     Kind = "empty"
)

// Fixed user-facing failure messages.
const (
	MsgInvalidInput      = "Input is not a valid Buffer or Uint8Array"
	MsgIntegrityFailed   = "FIT file integrity check failed"
	MsgDecodingErrors    = "Decoding errors occurred"
	MsgNoMessages        = "No valid messages decoded, FIT file might be corrupted."
	MsgGenericFailure    = "Failed to decode file"
	MsgNoDiagnostics     = "No additional details available"
	MsgLibraryUnloadable = "Failed to load FIT decoding library"
)

// Metadata describes where and when a FitDecodeError was raised.
type Metadata struct {
	Category  string `json:"category"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// FitDecodeError is a structured decode failure. Each failure creates a new
// value; they are not reused across calls.
type FitDecodeError struct {
	Message  string
	Details  any
	Kind     Kind
	Metadata Metadata

	cause error
}

// NewFitDecodeError creates a FitDecodeError with a captured stack trace.
// An empty source is recorded as "unknown".
func NewFitDecodeError(kind Kind, message string, details any, source string) *FitDecodeError {
	if source == "" {
		source = "unknown"
	}
	return &FitDecodeError{
		Message: message,
		Details: details,
		Kind:    kind,
		Metadata: Metadata{
			Category:  ErrorCategory,
			Source:    source,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		},
		cause: errors.NewWithDepth(1, message),
	}
}

func (e *FitDecodeError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying error when Details holds one.
func (e *FitDecodeError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// Stack renders the stack captured at creation, one frame per line.
func (e *FitDecodeError) Stack() string {
	st := errors.GetReportableStackTrace(e.cause)
	if st == nil {
		return ""
	}
	var b strings.Builder
	// Sentry orders frames oldest first.
	for i := len(st.Frames) - 1; i >= 0; i-- {
		f := st.Frames[i]
		fmt.Fprintf(&b, "%s.%s\n\t%s:%d\n", f.Module, f.Function, f.AbsPath, f.Lineno)
	}
	return b.String()
}

// ToMap serializes the error for logging and transport.
func (e *FitDecodeError) ToMap() map[string]any {
	return map[string]any{
		"name":    "FitDecodeError",
		"message": e.Message,
		"kind":    string(e.Kind),
		"details": detailsForTransport(e.Details),
		"metadata": map[string]any{
			"category":  e.Metadata.Category,
			"source":    e.Metadata.Source,
			"timestamp": e.Metadata.Timestamp,
		},
		"stack": e.Stack(),
	}
}

func (e *FitDecodeError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}

// detailsForTransport turns error values into strings so they survive JSON.
func detailsForTransport(v any) any {
	switch x := v.(type) {
	case error:
		return x.Error()
	case []error:
		out := make([]string, len(x))
		for i, err := range x {
			out[i] = err.Error()
		}
		return out
	default:
		return v
	}
}
