package fitview

import (
	"encoding/json"
	"io"
	"time"

	"github.com/lucasjlepore/fitview/options"
)

// Record is one decoded FIT message keyed by field name.
type Record map[string]any

// Messages maps a message type name (for example "recordMesgs") to its
// decoded records in file order.
type Messages map[string][]Record

// Library is the binary FIT decoding library driven by a Decoder.
type Library interface {
	NewStream(data []byte) (io.ReadSeeker, error)
	NewDecoder(stream io.ReadSeeker) (FitDecoder, error)
}

// LibraryLoader returns the library used when a call does not supply one.
type LibraryLoader func() (Library, error)

// FitDecoder decodes one FIT stream.
type FitDecoder interface {
	CheckIntegrity() bool
	Read(opts options.DecoderOptions) (*ReadResponse, error)
}

// Diagnoser is implemented by decoders that explain integrity failures.
type Diagnoser interface {
	Diagnostics() []string
}

// ReadResponse is the output of FitDecoder.Read.
type ReadResponse struct {
	Messages Messages
	// Errors lists per-message decode failures. A non-empty list fails the decode.
	Errors []error
}

// Failure is the failure shape of a Result.
type Failure struct {
	Error   string `json:"error"`
	Details any    `json:"details"`
	Kind    Kind   `json:"-"`
}

// Result is the outcome of a decode: either Messages (with Labels for
// vendor-unknown types) or a Failure, never both.
type Result struct {
	Messages Messages
	Labels   map[string]string
	Failure  *Failure
	// Elapsed is the duration reported by the performance monitor, if any.
	Elapsed time.Duration
	// Options are the effective decoder options of a successful decode.
	Options options.DecoderOptions
}

// OK reports whether the decode succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Failure == nil
}

// MessageCounts returns the number of records per message type.
func (r *Result) MessageCounts() map[string]int {
	out := make(map[string]int, len(r.Messages))
	for name, records := range r.Messages {
		out[name] = len(records)
	}
	return out
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failure != nil {
		return json.Marshal(Failure{Error: r.Failure.Error, Details: detailsForTransport(r.Failure.Details)})
	}
	return json.Marshal(struct {
		Messages Messages          `json:"messages"`
		Labels   map[string]string `json:"labels,omitempty"`
	}{r.Messages, r.Labels})
}

func failureResult(err *FitDecodeError) *Result {
	return &Result{Failure: &Failure{Error: err.Message, Details: err.Details, Kind: err.Kind}}
}
