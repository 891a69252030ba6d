// Package appconfig loads the fitview command configuration from defaults,
// an optional TOML file, FITVIEW_* environment variables and flags.
package appconfig

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. FITVIEW_LOG_LEVEL.
const EnvPrefix = "FITVIEW"

// Config is the application configuration.
type Config struct {
	// Home holds the settings files. Relative settings paths resolve against it.
	Home string `mapstructure:"home" validate:"required"`
	// SettingsFile is the TOML file backing the local decoder options store.
	SettingsFile string `mapstructure:"settings_file" validate:"required"`
	// SettingsDB is the SQLite settings database. Empty disables it.
	SettingsDB  string `mapstructure:"settings_db"`
	Format      string `mapstructure:"format" validate:"oneof=parquet csv"`
	Concurrency int    `mapstructure:"concurrency" validate:"min=1,max=64"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogJSON     bool   `mapstructure:"log_json"`
}

var validate = validator.New()

// DefaultHome returns ~/.fitview, or .fitview when the home directory is unknown.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fitview"
	}
	return filepath.Join(home, ".fitview")
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("home", DefaultHome())
	v.SetDefault("settings_file", "settings.toml")
	v.SetDefault("settings_db", "settings.db")
	v.SetDefault("format", "parquet")
	v.SetDefault("concurrency", 4)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configFile when set (TOML) into v, then unmarshals and
// validates the result. Relative settings paths are resolved against Home.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.Format = strings.ToLower(cfg.Format)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	cfg.SettingsFile = resolve(cfg.Home, cfg.SettingsFile)
	if cfg.SettingsDB != "" {
		cfg.SettingsDB = resolve(cfg.Home, cfg.SettingsDB)
	}
	return &cfg, nil
}

func resolve(home, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}
