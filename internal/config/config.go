// Package config owns the typed application configuration. The actor
// wraps a viper instance; loads apply environment overrides read
// through the Env actor, and saves are atomic (write temp, rename).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/spf13/viper"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/env"
	"github.com/lkml-tools/patch-hub/internal/logging"
)

const inboxSize = 32

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "PATCH_HUB_CONFIG"

// envOverrides maps option keys to the environment variables that
// supersede file values at load time.
var envOverrides = map[string]string{
	"log_dir":     "PATCH_HUB_LOG_DIR",
	"log_level":   "PATCH_HUB_LOG_LEVEL",
	"max_age":     "PATCH_HUB_MAX_AGE",
	"cache_dir":   "PATCH_HUB_CACHE_DIR",
	"lore_domain": "PATCH_HUB_LORE_DOMAIN",
}

// Options holds all recognised configuration values.
type Options struct {
	LogDir     string `mapstructure:"log_dir"`
	LogLevel   string `mapstructure:"log_level"`
	MaxAge     int    `mapstructure:"max_age"`
	CacheDir   string `mapstructure:"cache_dir"`
	LoreDomain string `mapstructure:"lore_domain"`
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		LogDir:     filepath.Join(defaultDataDir(), "logs"),
		LogLevel:   "INFO",
		MaxAge:     30,
		CacheDir:   filepath.Join(defaultDataDir(), "cache"),
		LoreDomain: "https://lore.kernel.org",
	}
}

// defaultDataDir returns the data directory for the current OS.
func defaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "patch-hub")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "patch-hub")
	}
}

// DefaultPath returns the config file path for the current OS.
func DefaultPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "patch-hub", "config.yaml")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "patch-hub", "config.yaml")
	}
}

// Config is the handle to a configuration actor.
type Config interface {
	// Load replaces state with the file contents and applies env
	// overrides. A missing file loads defaults.
	Load() error
	// Save writes the current state atomically.
	Save() error
	// GetPath returns the backing file path.
	GetPath() string
	// SetPath changes the backing file path without I/O.
	SetPath(p string)
	// Get returns a copy of the current options.
	Get() Options
	// LogLevel returns the parsed minimum log level.
	LogLevel() slog.Level
	// SetLogLevel updates the level in memory.
	SetLogLevel(level slog.Level)
	// GetInt returns an integer option by key, or domain.ErrConfig for
	// unknown keys.
	GetInt(key string) (int, error)
	// SetInt updates an integer option by key without I/O.
	SetInt(key string, v int) error
	// Warnings returns notes collected during the last Load, such as
	// unknown fields in the file.
	Warnings() []string
	// Close terminates the actor. Idempotent.
	Close()
}

type cfgMsg struct {
	op    cfgOp
	path  string
	key   string
	n     int
	level slog.Level
	reply chan cfgReply
}

type cfgOp int

const (
	opLoad cfgOp = iota
	opSave
	opGetPath
	opSetPath
	opGet
	opSetLogLevel
	opGetInt
	opSetInt
	opWarnings
)

type cfgReply struct {
	opts     Options
	path     string
	n        int
	warnings []string
	err      error
}

type actor struct {
	inbox chan cfgMsg
	done  chan struct{}
	once  sync.Once

	environ  env.Env
	path     string
	opts     Options
	warnings []string
}

// Spawn starts a live configuration actor. The backing file path is
// resolved from the PATCH_HUB_CONFIG variable through environ, falling
// back to the per-OS default. No file I/O happens until Load.
func Spawn(environ env.Env) (Config, <-chan struct{}) {
	path := DefaultPath()
	if p, err := environ.Get(EnvConfigPath); err == nil && p != "" {
		path = p
	}
	a := &actor{
		inbox:   make(chan cfgMsg, inboxSize),
		done:    make(chan struct{}),
		environ: environ,
		path:    path,
		opts:    DefaultOptions(),
	}
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		a.loop()
	}()
	return a, exited
}

func (a *actor) loop() {
	for {
		select {
		case msg := <-a.inbox:
			a.handle(msg)
		case <-a.done:
			for {
				select {
				case msg := <-a.inbox:
					a.handle(msg)
				default:
					return
				}
			}
		}
	}
}

func (a *actor) handle(msg cfgMsg) {
	switch msg.op {
	case opLoad:
		msg.reply <- cfgReply{err: a.load()}
	case opSave:
		msg.reply <- cfgReply{err: a.save()}
	case opGetPath:
		msg.reply <- cfgReply{path: a.path}
	case opSetPath:
		a.path = msg.path
	case opGet:
		msg.reply <- cfgReply{opts: a.opts}
	case opSetLogLevel:
		a.opts.LogLevel = levelName(msg.level)
	case opGetInt:
		n, err := a.getInt(msg.key)
		msg.reply <- cfgReply{n: n, err: err}
	case opSetInt:
		msg.reply <- cfgReply{err: a.setInt(msg.key, msg.n)}
	case opWarnings:
		msg.reply <- cfgReply{warnings: append([]string(nil), a.warnings...)}
	}
}

func levelName(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG"
	case level <= slog.LevelInfo:
		return "INFO"
	case level <= slog.LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

func (a *actor) load() error {
	opts := DefaultOptions()
	a.warnings = nil

	v := viper.New()
	v.SetConfigFile(a.path)
	v.SetConfigType("yaml")
	v.SetDefault("log_dir", opts.LogDir)
	v.SetDefault("log_level", opts.LogLevel)
	v.SetDefault("max_age", opts.MaxAge)
	v.SetDefault("cache_dir", opts.CacheDir)
	v.SetDefault("lore_domain", opts.LoreDomain)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("%w: reading config file: %v", domain.ErrConfig, err)
			}
		}
		// Missing file loads defaults.
	}

	for _, key := range v.AllKeys() {
		if _, known := envOverrides[key]; !known {
			a.warnings = append(a.warnings, fmt.Sprintf("unknown config field %q ignored", key))
		}
	}

	if err := v.Unmarshal(&opts); err != nil {
		return fmt.Errorf("%w: parsing config: %v", domain.ErrConfig, err)
	}

	// Env overrides supersede file values.
	for key, envName := range envOverrides {
		val, err := a.environ.Get(envName)
		if err != nil || val == "" {
			continue
		}
		switch key {
		case "log_dir":
			opts.LogDir = val
		case "log_level":
			opts.LogLevel = val
		case "cache_dir":
			opts.CacheDir = val
		case "lore_domain":
			opts.LoreDomain = val
		case "max_age":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: %s must be a non-negative integer, got %q", domain.ErrConfig, envName, val)
			}
			opts.MaxAge = n
		}
	}

	if opts.MaxAge < 0 {
		return fmt.Errorf("%w: max_age must be non-negative", domain.ErrConfig)
	}

	a.opts = opts
	return nil
}

// save writes the options to a temp file next to the target and renames
// it into place so a crash never leaves a torn config.
func (a *actor) save() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("log_dir", a.opts.LogDir)
	v.Set("log_level", a.opts.LogLevel)
	v.Set("max_age", a.opts.MaxAge)
	v.Set("cache_dir", a.opts.CacheDir)
	v.Set("lore_domain", a.opts.LoreDomain)

	tmp := a.path + ".tmp.yaml"
	if err := v.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

func (a *actor) getInt(key string) (int, error) {
	switch key {
	case "max_age":
		return a.opts.MaxAge, nil
	default:
		return 0, fmt.Errorf("%w: unknown integer option %q", domain.ErrConfig, key)
	}
}

func (a *actor) setInt(key string, v int) error {
	switch key {
	case "max_age":
		if v < 0 {
			return fmt.Errorf("%w: max_age must be non-negative", domain.ErrConfig)
		}
		a.opts.MaxAge = v
		return nil
	default:
		return fmt.Errorf("%w: unknown integer option %q", domain.ErrConfig, key)
	}
}

func (a *actor) send(msg cfgMsg) (cfgReply, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return cfgReply{}, domain.ErrPeerDead
	}
	if msg.reply == nil {
		return cfgReply{}, nil
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return cfgReply{}, domain.ErrPeerDead
		}
	}
}

func (a *actor) Load() error {
	r, err := a.send(cfgMsg{op: opLoad, reply: make(chan cfgReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) Save() error {
	r, err := a.send(cfgMsg{op: opSave, reply: make(chan cfgReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) GetPath() string {
	r, _ := a.send(cfgMsg{op: opGetPath, reply: make(chan cfgReply, 1)})
	return r.path
}

func (a *actor) SetPath(p string) {
	a.send(cfgMsg{op: opSetPath, path: p})
}

func (a *actor) Get() Options {
	r, _ := a.send(cfgMsg{op: opGet, reply: make(chan cfgReply, 1)})
	return r.opts
}

func (a *actor) LogLevel() slog.Level {
	return logging.ParseLevel(a.Get().LogLevel)
}

func (a *actor) SetLogLevel(level slog.Level) {
	a.send(cfgMsg{op: opSetLogLevel, level: level})
}

func (a *actor) GetInt(key string) (int, error) {
	r, err := a.send(cfgMsg{op: opGetInt, key: key, reply: make(chan cfgReply, 1)})
	if err != nil {
		return 0, err
	}
	return r.n, r.err
}

func (a *actor) SetInt(key string, v int) error {
	r, err := a.send(cfgMsg{op: opSetInt, key: key, n: v, reply: make(chan cfgReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) Warnings() []string {
	r, _ := a.send(cfgMsg{op: opWarnings, reply: make(chan cfgReply, 1)})
	return r.warnings
}

func (a *actor) Close() {
	a.once.Do(func() { close(a.done) })
}
