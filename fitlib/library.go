// Package fitlib binds the fitview decoding library contract to
// github.com/tormoder/fit.
package fitlib

import (
	"bytes"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tormoder/fit"
	"go.uber.org/zap"

	"github.com/lucasjlepore/fitview"
	"github.com/lucasjlepore/fitview/options"
)

// Library decodes FIT files with github.com/tormoder/fit.
type Library struct {
	logger *zap.Logger
}

// New returns a Library logging to logger. A nil logger disables logging.
func New(logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{logger: logger}
}

// Loader returns a fitview.LibraryLoader yielding a Library bound to logger.
func Loader(logger *zap.Logger) fitview.LibraryLoader {
	return func() (fitview.Library, error) { return New(logger), nil }
}

func (l *Library) NewStream(data []byte) (io.ReadSeeker, error) {
	return bytes.NewReader(data), nil
}

// NewDecoder reads the whole stream; FIT files are decoded from memory.
func (l *Library) NewDecoder(stream io.ReadSeeker) (fitview.FitDecoder, error) {
	if stream == nil {
		return nil, errors.New("nil FIT stream")
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "rewind FIT stream")
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, errors.Wrap(err, "read FIT stream")
	}
	return &Decoder{data: data, logger: l.logger}, nil
}

// Decoder decodes one FIT file held in memory.
type Decoder struct {
	data        []byte
	logger      *zap.Logger
	diagnostics []string
}

// CheckIntegrity validates the header, header CRC and file CRC.
func (d *Decoder) CheckIntegrity() bool {
	d.diagnostics = checkIntegrity(d.data)
	for _, p := range d.diagnostics {
		d.logger.Debug("integrity problem", zap.String("problem", p))
	}
	return len(d.diagnostics) == 0
}

// Diagnostics returns the problems found by the last CheckIntegrity call.
func (d *Decoder) Diagnostics() []string {
	return d.diagnostics
}

// Read decodes the file. A failure of the profile decoder is returned as the
// error; problems in messages outside the profile are reported in Errors.
func (d *Decoder) Read(opts options.DecoderOptions) (*fitview.ReadResponse, error) {
	unknown := opts.Enabled(options.IncludeUnknownData)
	var decodeOpts []fit.DecodeOption
	if unknown {
		decodeOpts = append(decodeOpts, fit.WithUnknownFields(), fit.WithUnknownMessages())
	}
	f, err := fit.Decode(bytes.NewReader(d.data), decodeOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "decode FIT file")
	}

	c := newConverter(opts)
	msgs := c.file(f)
	resp := &fitview.ReadResponse{Messages: msgs}

	if unknown {
		scan := scanRecords(d.data)
		c.unknownMessages(msgs, scan.Messages, knownMessage(f))
		resp.Errors = scan.Errors
	}
	if opts.Enabled(options.MergeHeartRates) {
		if n := mergeHeartRates(msgs); n > 0 {
			d.logger.Debug("merged heart rates", zap.Int("records", n))
		}
	}
	d.logger.Debug("decoded FIT file",
		zap.Stringer("type", f.Type()),
		zap.Int("message_types", len(msgs)),
		zap.Int("errors", len(resp.Errors)),
	)
	return resp, nil
}

// knownMessage reports whether the fit profile describes global message num.
func knownMessage(f *fit.File) func(uint16) bool {
	return func(num uint16) bool {
		if _, unknown := f.UnknownMessages[fit.MesgNum(num)]; unknown {
			return false
		}
		return !strings.HasPrefix(fit.MesgNum(num).String(), "MesgNum(")
	}
}
