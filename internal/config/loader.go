package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDebounce collapses bursts of writes from editors into one reload.
const reloadDebounce = 100 * time.Millisecond

// Loader reads a configuration file and optionally reloads it when it
// changes on disk.
type Loader struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	config   *Config
	onChange []func(old, new *Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	closeOnce sync.Once
	errChan chan error
}

// NewLoader creates a loader for path. A nil logger means slog.Default().
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		path:    path,
		logger:  logger.With("component", "config"),
		done:    make(chan struct{}),
		errChan: make(chan error, 1),
	}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load reads, overrides and validates the configuration. A missing file
// yields the defaults.
func (l *Loader) Load() (*Config, error) {
	cfg, err := load(l.path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the most recently loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers a callback run after every successful reload. Register
// callbacks before calling Watch.
func (l *Loader) OnChange(cb func(old, new *Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, cb)
	l.mu.Unlock()
}

// Errors delivers reload and watcher errors. Errors are dropped when nobody
// is receiving.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Watch starts reloading the file when it changes. The directory is watched
// rather than the file so that editors that replace the file are followed.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = watcher

	go l.watchLoop()
	l.logger.Debug("watching config", "path", l.path)
	return nil
}

func (l *Loader) watchLoop() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-l.done:
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.report(fmt.Errorf("watch config: %w", err))
		}
	}
}

// reload replaces the configuration if the file still parses and validates.
// A broken file keeps the previous configuration.
func (l *Loader) reload() {
	select {
	case <-l.done:
		return
	default:
	}

	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		// Editors that rename over the file briefly remove it.
		return
	}

	next, err := load(l.path)
	if err != nil {
		l.logger.Warn("config reload rejected", "path", l.path, "error", err)
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	prev := l.config
	l.config = next
	callbacks := append([]func(old, new *Config){}, l.onChange...)
	l.mu.Unlock()

	l.logger.Info("config reloaded", "path", l.path)
	for _, cb := range callbacks {
		cb(prev, next)
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errChan <- err:
	default:
	}
}

// Close stops watching.
func (l *Loader) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}

// loadConfigFromFile decodes path over the defaults, after checking the
// document against the schema.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	format, err := detectFormat(path, data)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := decode(format, data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	cfg := DefaultConfig()
	if err := decode(format, data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration at path, or at ConfigPath when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	return load(path)
}

func detectFormat(path string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml", nil
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	}

	// Unknown extension: take the first decoder that accepts the data.
	var probe map[string]any
	for _, format := range []string{"toml", "json", "yaml"} {
		if decode(format, data, &probe) == nil {
			return format, nil
		}
	}
	return "", fmt.Errorf("unable to parse config file %s (tried TOML, JSON, YAML)", path)
}

func decode(format string, data []byte, v any) error {
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
	return nil
}

// LoadOrCreate loads path, writing the defaults there first if it does not
// exist. The boolean reports whether a file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		if err := cfg.ApplyEnvOverrides(); err != nil {
			return nil, true, fmt.Errorf("environment overrides: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}
