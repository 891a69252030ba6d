package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lucasjlepore/fitview/appconfig"
	"github.com/lucasjlepore/fitview/logging"
)

// cli carries state shared by the subcommands of one invocation.
type cli struct {
	v          *viper.Viper
	configFile string
	cfg        *appconfig.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: appconfig.NewViper()}

	root := &cobra.Command{
		Use:   "fitdecode",
		Short: "Decode FIT activity files",
		Long: `fitdecode decodes FIT activity files into JSON messages and exports
record samples as parquet or CSV.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (FITVIEW_* prefix)
3. Config file given with --config (TOML)
4. Default values (settings under ~/.fitview)

Examples:
  fitdecode decode ride.fit                     # Print a summary
  fitdecode decode --json ride.fit              # Print the decoded messages
  fitdecode decode --out exports *.fit          # Write export bundles
  fitdecode decode --set include_unknown_data=true ride.fit
  fitdecode options set merge_heart_rates=false # Persist an option`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Config file (TOML)")
	flags.String("home", appconfig.DefaultHome(), "Directory holding the settings files")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log as JSON")
	for key, flag := range map[string]string{
		"home":      "home",
		"log_level": "log-level",
		"log_json":  "log-json",
	} {
		_ = c.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newDecodeCmd(c))
	root.AddCommand(newOptionsCmd(c))
	return root
}

func (c *cli) setup(*cobra.Command, []string) error {
	cfg, err := appconfig.Load(c.v, c.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{JSON: cfg.LogJSON, Level: cfg.LogLevel})
	if err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}
