package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
)

// Loader handles configuration loading and hot-reloading.
type Loader struct {
	path   string
	logger *logging.Logger

	mu       sync.RWMutex
	config   *Config
	onChange func(*Config)

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLoader creates a loader for the given config file path.
func NewLoader(path string, logger *logging.Logger) *Loader {
	return &Loader{
		path:     path,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Load reads and validates the configuration file. Environment variable
// references in the file ($VAR or ${VAR}) are expanded before parsing.
func (l *Loader) Load() (*Config, error) {
	content, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		}
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}

	config, err := Parse(substituteEnvVars(content))
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = config
	l.mu.Unlock()

	return config, nil
}

// Get returns the most recently loaded configuration.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetOnChange registers a callback invoked after a successful reload.
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// StartWatcher begins watching the config file for changes. Editors often
// replace the file rather than write it in place, so the watch is on the
// containing directory.
func (l *Loader) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return err
	}

	l.watcher = watcher
	l.wg.Add(1)
	go l.watchLoop()
	return nil
}

// StopWatcher stops the file watcher.
func (l *Loader) StopWatcher() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	if l.watcher != nil {
		l.watcher.Close()
		l.wg.Wait()
	}
}

func (l *Loader) watchLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			l.reload()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("config watcher error", "error", err.Error())
		}
	}
}

func (l *Loader) reload() {
	config, err := l.Load()
	if err != nil {
		// A bad edit must not take down a running watch; keep the last
		// good config.
		l.logger.Warn("config reload failed", "path", l.path, "error", err.Error())
		return
	}

	l.mu.RLock()
	onChange := l.onChange
	l.mu.RUnlock()

	l.logger.Info("configuration reloaded", "path", l.path)
	if onChange != nil {
		onChange(config)
	}
}

// Parse parses and validates configuration YAML, applying defaults for
// anything the document leaves unset.
func Parse(data []byte) (*Config, error) {
	config := Default()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}

	if err := config.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return config, nil
}

func substituteEnvVars(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
