package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 100 * time.Millisecond

// Change describes one successful reload.
type Change struct {
	Old, New *Config

	// Restart lists the sections that changed but are only read at startup.
	Restart []string
}

// Loader loads a configuration file and reloads it when it changes.
type Loader struct {
	path string

	mu       sync.RWMutex
	config   *Config
	onChange []func(Change)

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	errs    chan error
}

// NewLoader creates a loader for path. Nothing is read until Load.
func NewLoader(path string) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:   path,
		errs:   make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Load reads the file, applies RMLINES_* overrides and validates the result.
// A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	cfg, err := decodeFile(l.path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if _, err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers a callback run after every reload that changed
// something.
func (l *Loader) OnChange(cb func(Change)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, cb)
}

// Errors delivers reload failures. Only the latest undelivered error is kept.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Watch reloads the configuration whenever its file is written. The parent
// directory is watched since editors replace files rather than write them.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = w

	go l.loop()
	return nil
}

func (l *Loader) loop() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	name := filepath.Base(l.path)
	for {
		select {
		case <-l.ctx.Done():
			return

		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

// reload swaps in the new configuration if it still loads and validates.
// The old one stays in effect otherwise.
func (l *Loader) reload() {
	next, err := l.read()
	if err != nil {
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	prev := l.config
	l.config = next
	callbacks := append([]func(Change){}, l.onChange...)
	l.mu.Unlock()

	if prev != nil && equalSettings(prev, next) {
		return
	}
	change := Change{Old: prev, New: next, Restart: RestartRequired(prev, next)}
	for _, cb := range callbacks {
		cb(change)
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errs <- err:
		return
	default:
	}
	// Replace the stale error with the newer one.
	select {
	case <-l.errs:
	default:
	}
	select {
	case l.errs <- err:
	default:
	}
}

// Close stops watching.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// RestartRequired names the sections that differ between old and next and
// that rmlinesd reads only once. Logging is applied live.
func RestartRequired(old, next *Config) []string {
	if old == nil || next == nil {
		return nil
	}
	var out []string
	sections := []struct {
		name string
		a, b any
	}{
		{"writer", old.Writer, next.Writer},
		{"catalog", old.Catalog, next.Catalog},
		{"watch", old.Watch, next.Watch},
		{"export", old.Export, next.Export},
		{"metrics", old.Metrics, next.Metrics},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.a, s.b) {
			out = append(out, s.name)
		}
	}
	return out
}

func equalSettings(a, b *Config) bool {
	return a.Version == b.Version &&
		a.Logging == b.Logging &&
		len(RestartRequired(a, b)) == 0
}

// decoders parse a config file by extension.
var decoders = map[string]func([]byte, *Config) error{
	".toml": func(data []byte, cfg *Config) error {
		_, err := toml.Decode(string(data), cfg)
		return err
	},
	".json": func(data []byte, cfg *Config) error { return json.Unmarshal(data, cfg) },
	".yaml": func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
	".yml":  func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
}

// decodeFile reads path over the defaults. A file without a known extension
// is tried as TOML, JSON and YAML in turn.
func decodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	ext := filepath.Ext(path)
	if decode, ok := decoders[ext]; ok {
		cfg := DefaultConfig()
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ext, err)
		}
		return cfg, nil
	}

	for _, ext := range []string{".toml", ".json", ".yaml"} {
		cfg := DefaultConfig()
		if decoders[ext](data, cfg) == nil {
			return cfg, nil
		}
	}
	return nil, errors.New("parse config: not TOML, JSON or YAML")
}

// LoadOrCreate loads path, writing the defaults there first if it does not
// exist. The boolean reports whether the file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// SaveConfig writes cfg to path in the format named by its extension, TOML
// by default.
func SaveConfig(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".json":
		cfg.mu.RLock()
		data, err = json.MarshalIndent(cfg, "", "  ")
		cfg.mu.RUnlock()
	case ".yaml", ".yml":
		cfg.mu.RLock()
		data, err = yaml.Marshal(cfg)
		cfg.mu.RUnlock()
	default:
		data, err = cfg.Encode()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
