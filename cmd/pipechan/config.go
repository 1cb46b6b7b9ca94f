package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	pipeshare "github.com/sammck-go/pipechan/share"
)

// Config is the content of the optional TOML config file. Command line flags
// override it.
type Config struct {
	LogLevel          pipeshare.LogLevel `toml:"log_level"`
	Dir               string             `toml:"dir"`
	MinRetryInterval  duration           `toml:"min_retry_interval"`
	MaxRetryInterval  duration           `toml:"max_retry_interval"`
	CloseDrainTimeout duration           `toml:"close_drain_timeout"`
}

// duration is a time.Duration written as a string, e.g. "250ms"
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the settings used when there is no config file
func DefaultConfig() *Config {
	return &Config{LogLevel: pipeshare.LogLevelWarning}
}

// LoadConfig reads a TOML config file over defaults. A missing file yields defaults.
func LoadConfig(path string, defaults *Config) (*Config, error) {
	cfg := new(Config)
	if defaults != nil {
		*cfg = *defaults
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for values that cannot be used
func (c *Config) Validate() error {
	if c.MinRetryInterval.Duration < 0 || c.MaxRetryInterval.Duration < 0 || c.CloseDrainTimeout.Duration < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.MaxRetryInterval.Duration != 0 && c.MaxRetryInterval.Duration < c.MinRetryInterval.Duration {
		return fmt.Errorf("max_retry_interval %s is less than min_retry_interval %s",
			c.MaxRetryInterval.Duration, c.MinRetryInterval.Duration)
	}
	return nil
}

// configWatcher reloads the config file when it changes and applies the new log
// level. Other settings only take effect on the next start.
type configWatcher struct {
	pipeshare.Logger
	path     string
	debounce time.Duration
	onReload func(*Config)

	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	stop     chan struct{}
}

func newConfigWatcher(logger pipeshare.Logger, path string, onReload func(*Config)) (*configWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors often replace the file rather than write it.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &configWatcher{
		Logger:   logger.Fork("ConfigWatcher(%q)", path),
		path:     filepath.Clean(path),
		debounce: 100 * time.Millisecond,
		onReload: onReload,
		fsw:      fsw,
		stop:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *configWatcher) run() {
	var timer *time.Timer
	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, w.reload)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.ELogf("config watcher error: %s", err)
		}
	}
}

func (w *configWatcher) reload() {
	cfg, err := LoadConfig(w.path, DefaultConfig())
	if err != nil {
		w.WLogf("keeping previous config: %s", err)
		return
	}
	w.DLogf("config file changed, reloaded")
	w.onReload(cfg)
}

// Close stops the watcher
func (w *configWatcher) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	return w.fsw.Close()
}
