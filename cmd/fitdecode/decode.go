package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasjlepore/fitview"
	"github.com/lucasjlepore/fitview/export"
	"github.com/lucasjlepore/fitview/options"
)

type decodeFlags struct {
	set       []string
	out       string
	json      bool
	metrics   bool
	overwrite bool
	ftp       float64
}

// fileOutcome is the result of decoding one input file.
type fileOutcome struct {
	Path      string            `json:"file"`
	Result    *fitview.Result   `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
}

func newDecodeCmd(c *cli) *cobra.Command {
	f := &decodeFlags{}
	cmd := &cobra.Command{
		Use:   "decode FILE...",
		Short: "Decode FIT files",
		Long: `Decode one or more FIT files with the persisted decoder options.

Options given with --set apply to this run only. With --out, each file gets
an export directory named after it holding messages.json,
messages_index.json and the record samples.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDecode(cmd.Context(), cmd.OutOrStdout(), f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&f.set, "set", nil, "Override a decoder option for this run (name=true|false)")
	flags.StringVar(&f.out, "out", "", "Write an export bundle per file under this directory")
	flags.String("format", "parquet", "Samples format for --out: parquet or csv")
	flags.Int("concurrency", 4, "Maximum number of files decoded at once")
	flags.BoolVar(&f.json, "json", false, "Print decode results as JSON lines")
	flags.BoolVar(&f.metrics, "metrics", false, "Print decode metrics after the run")
	flags.Float64Var(&f.ftp, "ftp", 0, "FTP in watts for intensity factor and TSS in the activity summary")
	flags.BoolVar(&f.overwrite, "overwrite", false, "Allow writing into non-empty export directories")
	_ = c.v.BindPFlag("format", flags.Lookup("format"))
	_ = c.v.BindPFlag("concurrency", flags.Lookup("concurrency"))
	return cmd
}

func (c *cli) runDecode(ctx context.Context, w io.Writer, f *decodeFlags, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	candidate, err := parseAssignments(f.set)
	if err != nil {
		return err
	}
	overrides, err := overridesFrom(candidate)
	if err != nil {
		return err
	}

	a, err := c.openApp()
	if err != nil {
		return err
	}
	defer a.close()
	// Edits to the settings file during a long run apply to the files not yet decoded.
	if stop, err := a.local.Watch(a.decoder.Gateway().Invalidate); err != nil {
		c.logger.Warn("settings file not watched", zap.Error(err))
	} else {
		defer func() { _ = stop() }()
	}

	outcomes := make([]fileOutcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			outcomes[i] = c.decodeOne(gctx, a, f, path, overrides)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Error != "" || !o.Result.OK() {
			failed++
		}
		if err := printOutcome(w, o, f.json); err != nil {
			return err
		}
	}

	if f.metrics {
		if err := writeMetrics(w, a.registry); err != nil {
			return err
		}
	}
	if failed > 0 {
		return errors.Newf("%d of %d files failed to decode", failed, len(paths))
	}
	return nil
}

func (c *cli) decodeOne(ctx context.Context, a *app, f *decodeFlags, path string, overrides options.DecoderOptions) fileOutcome {
	out := fileOutcome{Path: path}
	logger := c.logger.With(zap.String("file", path))

	data, err := os.ReadFile(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	res, err := a.decoder.DecodeFitFile(ctx, data, overrides, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Result = res
	if !res.OK() || f.out == "" {
		return out
	}

	artifacts, err := export.Bundle(res, export.Options{
		Format:     c.cfg.Format,
		SourceName: filepath.Base(path),
		SourceData: data,
		FTPW:       f.ftp,
	})
	if err != nil {
		out.Error = errors.Wrap(err, "export").Error()
		return out
	}
	for _, warning := range artifacts.Warnings {
		logger.Warn("export warning", zap.String("warning", warning))
	}
	dir := filepath.Join(f.out, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	written, err := artifacts.WriteDir(dir, f.overwrite)
	if err != nil {
		out.Error = errors.Wrap(err, "export").Error()
		return out
	}
	out.Artifacts = written
	logger.Info("export written", zap.String("dir", dir), zap.Int("samples", artifacts.SampleCount))
	return out
}

func printOutcome(w io.Writer, o fileOutcome, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(o)
	}

	switch {
	case o.Error != "":
		_, err := fmt.Fprintf(w, "%s: error: %s\n", o.Path, o.Error)
		return err
	case !o.Result.OK():
		_, err := fmt.Fprintf(w, "%s: failed: %s\n", o.Path, o.Result.Failure.Error)
		return err
	}

	counts := o.Result.MessageCounts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	if _, err := fmt.Fprintf(w, "%s: ok (%d message types, %s)\n", o.Path, len(names), o.Result.Elapsed); err != nil {
		return err
	}
	for _, name := range names {
		label := o.Result.Labels[name]
		if label != "" {
			label = "  " + label
		}
		if _, err := fmt.Fprintf(w, "  %-28s %6d%s\n", name, counts[name], label); err != nil {
			return err
		}
	}
	artifactNames := make([]string, 0, len(o.Artifacts))
	for name := range o.Artifacts {
		artifactNames = append(artifactNames, name)
	}
	sort.Strings(artifactNames)
	for _, name := range artifactNames {
		if _, err := fmt.Fprintf(w, "  wrote %s\n", o.Artifacts[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}

// parseAssignments parses name=value pairs. Boolean text becomes a bool;
// anything else is kept as a string so validation can report it.
func parseAssignments(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Newf("invalid option assignment %q, want name=value", pair)
		}
		value = strings.TrimSpace(value)
		if b, err := strconv.ParseBool(value); err == nil {
			out[name] = b
		} else {
			out[name] = value
		}
	}
	return out, nil
}

// overridesFrom validates candidate and returns only the options it names.
func overridesFrom(candidate map[string]any) (options.DecoderOptions, error) {
	if candidate == nil {
		return nil, nil
	}
	v := options.Validate(candidate)
	if !v.Valid {
		return nil, errors.Newf("invalid options: %s", strings.Join(v.Errors, "; "))
	}
	out := make(options.DecoderOptions, len(candidate))
	for name := range candidate {
		out[name] = v.Options[name]
	}
	return out, nil
}
