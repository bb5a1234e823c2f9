package config

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/logging"
)

// Mock is an in-memory Config. Load and Save are no-ops beyond
// counting, so tests can hand components fixed options.
type Mock struct {
	mu    sync.Mutex
	path  string
	opts  Options
	loads int
	saves int
}

// NewMock returns a mock configuration holding opts.
func NewMock(opts Options) *Mock {
	return &Mock{path: DefaultPath(), opts: opts}
}

func (m *Mock) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return nil
}

func (m *Mock) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return nil
}

func (m *Mock) GetPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

func (m *Mock) SetPath(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = p
}

func (m *Mock) Get() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

func (m *Mock) LogLevel() slog.Level {
	return logging.ParseLevel(m.Get().LogLevel)
}

func (m *Mock) SetLogLevel(level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.LogLevel = levelName(level)
}

func (m *Mock) GetInt(key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "max_age" {
		return m.opts.MaxAge, nil
	}
	return 0, fmt.Errorf("%w: unknown integer option %q", domain.ErrConfig, key)
}

func (m *Mock) SetInt(key string, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "max_age" {
		m.opts.MaxAge = v
		return nil
	}
	return fmt.Errorf("%w: unknown integer option %q", domain.ErrConfig, key)
}

func (m *Mock) Warnings() []string { return nil }

func (m *Mock) Close() {}

// Saves returns how many times Save was called. Test helper.
func (m *Mock) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
