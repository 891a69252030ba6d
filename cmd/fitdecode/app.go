package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lucasjlepore/fitview"
	"github.com/lucasjlepore/fitview/fitlib"
	"github.com/lucasjlepore/fitview/metrics"
	"github.com/lucasjlepore/fitview/settings"
	"github.com/lucasjlepore/fitview/settings/sqlitestore"
)

// app is a Decoder wired to the configured settings stores.
type app struct {
	decoder  *fitview.Decoder
	local    *settings.FileStore
	registry *prometheus.Registry
	monitor  *metrics.Monitor
	close    func()
}

// openApp opens the local settings file and, when configured, the SQLite
// settings database as the primary tier. A database that cannot be opened
// is logged and the file store serves alone.
func (c *cli) openApp() (*app, error) {
	if err := os.MkdirAll(c.cfg.Home, 0o755); err != nil {
		return nil, errors.Wrap(err, "create settings directory")
	}
	local, err := settings.OpenFileStore(c.cfg.SettingsFile, c.logger.Named("local"))
	if err != nil {
		return nil, err
	}

	d := fitview.New(fitview.Config{
		Library: fitlib.Loader(c.logger.Named("fitlib")),
		Local:   local,
		Logger:  c.logger,
		Source:  "fitdecode",
	})

	registry := prometheus.NewRegistry()
	a := &app{
		decoder:  d,
		local:    local,
		registry: registry,
		monitor:  metrics.NewMonitor(registry),
		close:    func() {},
	}

	collab := fitview.Collaborators{
		Loading: &progressLogger{logger: c.logger.Named("progress")},
		Perf:    a.monitor,
	}
	if c.cfg.SettingsDB != "" {
		store, err := sqlitestore.Open(c.cfg.SettingsDB, c.logger.Named("sqlite"))
		if err != nil {
			c.logger.Warn("settings database unavailable, using local config only",
				zap.String("path", c.cfg.SettingsDB),
				zap.Error(err),
			)
		} else {
			collab.Settings = store
			a.close = func() {
				if err := store.Close(); err != nil {
					c.logger.Warn("close settings database", zap.Error(err))
				}
			}
		}
	}
	d.Initialize(collab)
	return a, nil
}

// progressLogger is a LoadingNotifier that logs decode progress.
type progressLogger struct {
	logger *zap.Logger
}

func (p *progressLogger) UpdateLoadingProgress(percent int) error {
	p.logger.Debug("decode progress", zap.Int("percent", percent))
	return nil
}

func (p *progressLogger) HandleFileLoadingError(err *fitview.FitDecodeError, details any) error {
	p.logger.Warn("decode failed",
		zap.String("kind", string(err.Kind)),
		zap.String("error", err.Message),
		zap.Any("details", details),
	)
	return nil
}

func (p *progressLogger) HandleFileLoaded(res *fitview.Result) error {
	p.logger.Debug("file decoded",
		zap.Int("message_types", len(res.Messages)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return nil
}
