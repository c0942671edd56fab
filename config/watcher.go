package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Watcher reloads the dotenv file when it changes and fires the registered callbacks.
type Watcher struct {
	cfg     *Config
	path    string
	fs      *fsnotify.Watcher
	logger  *zap.Logger
	done    chan struct{}
	closeMu sync.Once
}

// NewWatcher starts watching the directory holding cfg.EnvFile.
func NewWatcher(cfg *Config) (*Watcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	path, err := filepath.Abs(cfg.EnvFile)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		cfg:    cfg,
		path:   path,
		fs:     fsWatcher,
		logger: zap.L().Named("config"),
		done:   make(chan struct{}),
	}, nil
}

// Watch processes file events in the background until Close is called.
func (w *Watcher) Watch() {
	go func() {
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-w.fs.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := w.reload(); err != nil {
					w.logger.Warn("Failed to reload configuration", zap.Error(err))
				}
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				w.logger.Warn("Config watcher error", zap.Error(err))
			}
		}
	}()
}

func (w *Watcher) reload() error {
	if err := godotenv.Overload(w.path); err != nil {
		return err
	}
	next := &Config{}
	if err := env.Parse(next); err != nil {
		return err
	}
	w.cfg.notify(next)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeMu.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}
