package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/lucasjlepore/fitview/options"
	"github.com/lucasjlepore/fitview/settings"
)

func newOptionsCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "options",
		Short: "Manage persisted decoder options",
		Long: `Show and change the decoder options used by decode.

Options are read from the settings database first, then the local settings
file, then the built-in defaults.`,
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the persisted decoder options and where they come from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.close()
			res := a.decoder.Gateway().Resolve(cmd.Context())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"options": res.Options,
					"source":  res.Tier.String(),
					"errors":  res.Errors,
				})
			}
			return printOptions(cmd.OutOrStdout(), res.Options, res.Tier, res.Errors)
		},
	}

	set := &cobra.Command{
		Use:   "set NAME=VALUE...",
		Short: "Persist decoder options",
		Long:  "Persist decoder options. Options not named keep their persisted value.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseAssignments(args)
			if err != nil {
				return err
			}
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.close()

			candidate := a.decoder.PersistedOptions(cmd.Context()).ToMap()
			for name, value := range changes {
				candidate[name] = value
			}
			res := a.decoder.UpdateOptions(cmd.Context(), candidate)
			return reportUpdate(cmd.OutOrStdout(), res, asJSON)
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear persisted decoder options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.close()
			return reportUpdate(cmd.OutOrStdout(), a.decoder.ResetOptions(cmd.Context()), asJSON)
		},
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "List the decoder options with their defaults",
		Args:  cobra.NoArgs,
		// The schema needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, options.Schema)
			}
			for _, name := range options.Names() {
				spec := options.Schema[name]
				if _, err := fmt.Fprintf(w, "%-28s %-7s default=%-5t %s\n", name, spec.Type, spec.Default, spec.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(show, set, reset, schema)
	return cmd
}

func reportUpdate(w io.Writer, res settings.UpdateResult, asJSON bool) error {
	if asJSON {
		if err := writeJSON(w, res); err != nil {
			return err
		}
	} else if res.Success {
		if err := printOptions(w, res.Options, res.Tier, nil); err != nil {
			return err
		}
	}
	if !res.Success {
		return errors.Newf("options not saved: %s", strings.Join(res.Errors, "; "))
	}
	return nil
}

func printOptions(w io.Writer, opts options.DecoderOptions, tier settings.Tier, problems []string) error {
	if _, err := fmt.Fprintf(w, "source: %s\n", tier); err != nil {
		return err
	}
	for _, name := range options.Names() {
		if _, err := fmt.Fprintf(w, "%-28s %t\n", name, opts[name]); err != nil {
			return err
		}
	}
	for _, p := range problems {
		if _, err := fmt.Fprintf(w, "warning: %s\n", p); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
