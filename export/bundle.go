package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lucasjlepore/fitview"
	"github.com/lucasjlepore/fitview/options"
)

// now is replaced in tests.
var now = time.Now

// Bundle renders the artifacts for a successful decode in memory.
func Bundle(res *fitview.Result, opts Options) (*Artifacts, error) {
	if !res.OK() {
		return nil, errors.New("cannot export a failed decode")
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatParquet
	}
	if format != FormatParquet && format != FormatCSV {
		return nil, errors.Newf("unsupported format %q (expected parquet|csv)", opts.Format)
	}

	a := &Artifacts{Files: map[string][]byte{}}

	messages, err := marshalJSON(res)
	if err != nil {
		return nil, errors.Wrap(err, "encode messages")
	}
	a.Files[MessagesFile] = messages

	var samples []Sample
	samplesName := ""
	switch {
	case !scaled(res):
		// Raw integers do not match the unit-named sample columns.
		a.Warnings = append(a.Warnings, "apply_scale_and_offset is off; samples and summary skipped")
	default:
		samples = BuildSamples(res.Messages)
		if len(samples) == 0 {
			a.Warnings = append(a.Warnings, "no timestamped record messages; samples file skipped")
			break
		}
		samplesName = "samples." + format
		var data []byte
		if format == FormatCSV {
			data, err = marshalCSV(samples)
		} else {
			data, err = marshalParquet(samples)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", samplesName)
		}
		a.Files[samplesName] = data

		summary, err := marshalJSON(Summarize(samples, opts.FTPW))
		if err != nil {
			return nil, errors.Wrap(err, "encode summary")
		}
		a.Files[SummaryFile] = summary
	}
	a.SampleCount = len(samples)

	index, err := marshalJSON(buildIndex(res, opts.SourceName, len(samples), samplesName))
	if err != nil {
		return nil, errors.Wrap(err, "encode index")
	}
	a.Files[IndexFile] = index

	if len(opts.SourceData) > 0 {
		a.Files[SourceFile] = append([]byte(nil), opts.SourceData...)
	}
	return a, nil
}

func buildIndex(res *fitview.Result, source string, samples int, samplesName string) Index {
	idx := Index{
		SourceName:  source,
		GeneratedAt: now().UTC(),
		Labels:      res.Labels,
		SampleCount: samples,
		SamplesFile: samplesName,
	}
	for name, count := range res.MessageCounts() {
		idx.MessageTypes = append(idx.MessageTypes, MessageType{Name: name, Count: count, Label: res.Labels[name]})
	}
	sort.Slice(idx.MessageTypes, func(i, j int) bool {
		return idx.MessageTypes[i].Name < idx.MessageTypes[j].Name
	})
	return idx
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Names returns the artifact file names in sorted order.
func (a *Artifacts) Names() []string {
	names := make([]string, 0, len(a.Files))
	for name := range a.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteDir writes every artifact into dir and returns their paths by name.
// A non-empty dir is rejected unless overwrite is set.
func (a *Artifacts) WriteDir(dir string, overwrite bool) (map[string]string, error) {
	if err := ensureOutputDir(dir, overwrite); err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(a.Files))
	for _, name := range a.Names() {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, a.Files[name], 0o644); err != nil {
			return nil, errors.Wrapf(err, "write %s", name)
		}
		paths[name] = p
	}
	return paths, nil
}

// Zip packs the artifacts into a zip archive with fixed timestamps so
// identical inputs produce identical archives.
func (a *Artifacts) Zip() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fixedTime := time.Unix(0, 0).UTC()

	for _, name := range a.Names() {
		h := &zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		}
		h.SetModTime(fixedTime)
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(a.Files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return errors.Wrap(err, "read output directory")
	}
	if len(entries) > 0 && !overwrite {
		return errors.Newf("output directory is not empty: %s (set overwrite to allow)", path)
	}
	return nil
}

// scaled reports whether record values carry profile units. A result
// without recorded options is taken as decoded with the defaults.
func scaled(res *fitview.Result) bool {
	return res.Options.Enabled(options.ApplyScaleAndOffset)
}
