package settings

import (
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FileStore is a LocalStore backed by a TOML config file. It holds the
// file's top-level keys in memory; Set replaces a whole key and rewrites the
// file from that state.
type FileStore struct {
	mu     sync.Mutex
	data   map[string]any
	path   string
	logger *zap.Logger
}

// OpenFileStore opens the config file at path. A missing file is not an
// error; it is created on the first Set.
func OpenFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("config file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := readTOML(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("local config store opened", zap.String("path", path))
	return &FileStore{data: data, path: filepath.Clean(path), logger: logger}, nil
}

// readTOML returns the top-level settings of the file at path, or an empty
// map when it does not exist.
func readTOML(path string) (map[string]any, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, errors.Wrapf(err, "stat config file %s", path)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	return v.AllSettings(), nil
}

// Path returns the config file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(key string, fallback any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return fallback, nil
	}
	return v, nil
}

// Set replaces key and rewrites the file. Keys holding empty tables are
// omitted from the file.
func (s *FileStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	next := maps.Clone(s.data)
	next[key] = value
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.MergeConfigMap(next); err != nil {
		return errors.Wrap(err, "stage config")
	}
	// Written beside the target and renamed so readers never see a partial file.
	tmp := s.path + ".tmp.toml"
	if err := v.WriteConfigAs(tmp); err != nil {
		return errors.Wrapf(err, "write config file %s", s.path)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "replace config file %s", s.path)
	}
	s.data = next
	return nil
}

// reload replaces the in-memory state with the file content. A file that
// fails to parse leaves the state unchanged.
func (s *FileStore) reload() error {
	data, err := readTOML(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Watch reloads the store whenever the config file changes on disk, then
// calls onChange. The returned function stops watching.
func (s *FileStore) Watch(onChange func()) (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create config watcher")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.Close()
		return nil, errors.Wrap(err, "create config directory")
	}
	// The directory is watched so editors that replace the file are seen.
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if !s.touches(e) {
					continue
				}
				if err := s.reload(); err != nil {
					s.logger.Warn("local config reload failed", zap.String("path", s.path), zap.Error(err))
					continue
				}
				s.logger.Info("local config changed on disk",
					zap.String("path", e.Name),
					zap.String("op", e.Op.String()),
				)
				if onChange != nil {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("local config watch error", zap.Error(err))
			}
		}
	}()

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			err = w.Close()
			<-done
		})
		return err
	}, nil
}

// touches reports whether e changes the content at the store's path.
func (s *FileStore) touches(e fsnotify.Event) bool {
	if filepath.Clean(e.Name) != s.path {
		return false
	}
	return e.Has(fsnotify.Write) || e.Has(fsnotify.Create) || e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename)
}
