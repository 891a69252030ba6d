// Package fitview decodes FIT activity files through a pluggable decoding
// library, using decoder options persisted across runs.
//
// A Decoder drives one decode per DecodeFitFile call through fixed
// checkpoints (10, 30, 50, 70, 90 and 100 percent), turns every expected
// failure into a Result carrying a human-readable message, and labels
// vendor-specific message types the FIT profile does not describe.
package fitview

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasjlepore/fitview/options"
	"github.com/lucasjlepore/fitview/settings"
)

// Progress checkpoints reported to the LoadingNotifier.
const (
	ProgressStarted   = 10
	ProgressLoaded    = 30
	ProgressVerified  = 50
	ProgressDecoded   = 70
	ProgressLabeled   = 90
	ProgressCompleted = 100
)

// errNoLibrary is reported when neither the call nor the Config supplies a library.
var errNoLibrary = errors.New("no FIT decoding library configured")

// Config configures a Decoder.
type Config struct {
	// Library loads the default decoding library. Calls may override it.
	Library LibraryLoader
	// Local is the fallback options store. Defaults to an in-memory store.
	Local settings.LocalStore
	Logger *zap.Logger
	// Source tags FitDecodeError metadata.
	Source string
}

// Decoder is a long-lived decode service. It is safe for concurrent use.
type Decoder struct {
	loader  LibraryLoader
	gateway *settings.Gateway
	logger  *zap.Logger
	source  string

	mu     sync.RWMutex
	collab Collaborators
}

// New returns a Decoder with no collaborators registered.
func New(cfg Config) *Decoder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{
		loader:  cfg.Library,
		gateway: settings.NewGateway(cfg.Local, logger.Named("settings")),
		logger:  logger,
		source:  cfg.Source,
	}
}

// Initialize replaces the registered collaborators. The zero value disables
// every optional integration.
func (d *Decoder) Initialize(c Collaborators) {
	d.mu.Lock()
	d.collab = c
	d.mu.Unlock()
	d.gateway.SetPrimary(c.Settings)
}

// Gateway returns the options gateway backing d.
func (d *Decoder) Gateway() *settings.Gateway {
	return d.gateway
}

func (d *Decoder) PersistedOptions(ctx context.Context) options.DecoderOptions {
	return d.gateway.Persisted(ctx)
}

func (d *Decoder) UpdateOptions(ctx context.Context, candidate map[string]any) settings.UpdateResult {
	return d.gateway.Update(ctx, candidate)
}

func (d *Decoder) CurrentOptions(ctx context.Context) options.DecoderOptions {
	return d.gateway.Current(ctx)
}

func (d *Decoder) ResetOptions(ctx context.Context) settings.UpdateResult {
	return d.gateway.Reset(ctx)
}

func (d *Decoder) hooks() hooks {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return hooks{c: d.collab, logger: d.logger}
}

// DecodeFile reads path and decodes it with the default library.
func (d *Decoder) DecodeFile(ctx context.Context, path string, overrides options.DecoderOptions) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return d.DecodeFitFile(ctx, data, overrides, nil)
}

// DecodeFitFile decodes input, which must be a non-nil []byte, a
// *bytes.Buffer or any value with a Bytes() []byte method. lib overrides
// the configured library when non-nil.
//
// Decode failures are reported in the Result, not as an error. The error is
// non-nil only for invalid input (a *FitDecodeError) or when the
// PerformanceMonitor fails to stop the decode timer.
func (d *Decoder) DecodeFitFile(ctx context.Context, input any, overrides options.DecoderOptions, lib Library) (*Result, error) {
	h := d.hooks()

	data, ok := inputBytes(input)
	if !ok {
		ferr := NewFitDecodeError(KindInput, MsgInvalidInput, fmt.Sprintf("got %T", input), d.source)
		h.loadingError(ferr)
		return nil, ferr
	}

	opts := d.gateway.Persisted(ctx).Merge(overrides)

	h.progress(ProgressStarted)
	key := "decode-" + uuid.NewString()
	timing := h.startTimer(key)

	messages, ferr := d.run(h, data, opts, lib)
	if ferr != nil {
		d.logger.Debug("decode failed", zap.String("kind", string(ferr.Kind)), zap.String("error", ferr.Message))
		h.loadingError(ferr)
		res := failureResult(ferr)
		if timing {
			if _, err := h.stopTimer(key); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	h.progress(ProgressLabeled)
	labeled := ApplyUnknownMessageLabels(messages)
	res := &Result{Messages: labeled.Messages, Labels: labeled.Labels, Options: opts}

	h.progress(ProgressCompleted)
	if timing {
		elapsed, err := h.stopTimer(key)
		if err != nil {
			return nil, err
		}
		res.Elapsed = elapsed
	}
	h.loaded(res)
	return res, nil
}

// run executes the library stages. Panics raised by the library are
// recovered into failures.
func (d *Decoder) run(h hooks, data []byte, opts options.DecoderOptions, lib Library) (msgs Messages, ferr *FitDecodeError) {
	stage := KindLibrary
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				ferr = NewFitDecodeError(stage, err.Error(), err, d.source)
				return
			}
			d.logger.Warn("decoding library panicked", zap.Any("panic", r))
			ferr = NewFitDecodeError(stage, MsgGenericFailure, nil, d.source)
		}
	}()

	h.progress(ProgressLoaded)
	if lib == nil {
		var err error
		if lib, err = d.loadLibrary(); err != nil {
			return nil, NewFitDecodeError(KindLibrary, MsgLibraryUnloadable, err, d.source)
		}
	}
	stream, err := lib.NewStream(data)
	if err != nil {
		return nil, NewFitDecodeError(KindLibrary, err.Error(), err, d.source)
	}
	dec, err := lib.NewDecoder(stream)
	if err != nil {
		return nil, NewFitDecodeError(KindLibrary, err.Error(), err, d.source)
	}

	h.progress(ProgressVerified)
	stage = KindIntegrity
	if !dec.CheckIntegrity() {
		var details any = MsgNoDiagnostics
		if dg, ok := dec.(Diagnoser); ok {
			if lines := dg.Diagnostics(); len(lines) > 0 {
				details = lines
			}
		}
		return nil, NewFitDecodeError(KindIntegrity, MsgIntegrityFailed, details, d.source)
	}

	h.progress(ProgressDecoded)
	stage = KindDecode
	resp, err := dec.Read(opts)
	if err != nil {
		return nil, NewFitDecodeError(KindDecode, err.Error(), err, d.source)
	}
	if resp != nil && len(resp.Errors) > 0 {
		return nil, NewFitDecodeError(KindDecode, MsgDecodingErrors, resp.Errors, d.source)
	}
	if resp == nil || len(resp.Messages) == 0 {
		return nil, NewFitDecodeError(KindEmpty, MsgNoMessages, nil, d.source)
	}
	return resp.Messages, nil
}

func (d *Decoder) loadLibrary() (Library, error) {
	if d.loader == nil {
		return nil, errNoLibrary
	}
	lib, err := d.loader()
	if err != nil {
		return nil, err
	}
	if lib == nil {
		return nil, errNoLibrary
	}
	return lib, nil
}

func inputBytes(input any) ([]byte, bool) {
	switch x := input.(type) {
	case []byte:
		return x, x != nil
	case *bytes.Buffer:
		if x == nil {
			return nil, false
		}
		return x.Bytes(), true
	case interface{ Bytes() []byte }:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, false
		}
		return x.Bytes(), true
	default:
		return nil, false
	}
}

