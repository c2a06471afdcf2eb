package am

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/logger"
)

// ChangeCallback is called after a watched file settles
type ChangeCallback func(path string) error

// FileWatcher watches one file for changes and triggers debounced callbacks.
// The parent directory is watched so editors that replace the file by rename
// are still seen.
type FileWatcher struct {
	path           string
	watcher        *fsnotify.Watcher
	callbacks      []ChangeCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	done           chan struct{}
}

// NewFileWatcher creates a watcher for path
func NewFileWatcher(path string) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", abs)
	}

	return &FileWatcher{
		path:           abs,
		watcher:        watcher,
		debouncePeriod: 500 * time.Millisecond, // editors write in bursts
		done:           make(chan struct{}),
	}, nil
}

// SetDebounce overrides the debounce period
func (fw *FileWatcher) SetDebounce(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.debouncePeriod = d
}

// OnChange registers a callback
func (fw *FileWatcher) OnChange(callback ChangeCallback) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.callbacks = append(fw.callbacks, callback)
}

// Start begins watching for changes
func (fw *FileWatcher) Start() {
	go fw.watchLoop()
}

func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debugw("Watcher detected change",
				logger.FieldFile, event.Name,
				"op", event.Op.String())
			fw.scheduleFire()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Watcher error", logger.FieldError, err)
		}
	}
}

func (fw *FileWatcher) scheduleFire() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.debounceTimer = time.AfterFunc(fw.debouncePeriod, fw.fire)
}

func (fw *FileWatcher) fire() {
	fw.mu.RLock()
	callbacks := make([]ChangeCallback, len(fw.callbacks))
	copy(callbacks, fw.callbacks)
	fw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(fw.path); err != nil {
			// Keep calling the rest even if one fails
			logger.Warnw("Watcher callback error",
				logger.FieldFile, fw.path,
				logger.FieldError, err)
		}
	}
}

// Stop stops watching
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.mu.Unlock()
	close(fw.done)
	return fw.watcher.Close()
}

// ReloadCallback is called when config is reloaded
type ReloadCallback func(*Config) error

// ConfigWatcher reloads the global config whenever its file changes
type ConfigWatcher struct {
	*FileWatcher
}

// NewConfigWatcher creates a watcher that reloads configuration from configPath
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	fw, err := NewFileWatcher(configPath)
	if err != nil {
		return nil, err
	}
	return &ConfigWatcher{FileWatcher: fw}, nil
}

// OnReload registers a callback to be called with the reloaded config.
// An invalid config file is logged and the callbacks are skipped.
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.OnChange(func(path string) error {
		Reset()
		cfg, err := Load()
		if err != nil {
			return errors.Wrapf(err, "reload %s", path)
		}
		logger.Infow("Config reloaded", logger.FieldFile, path)
		return callback(cfg)
	})
}
