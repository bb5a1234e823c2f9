package env

import (
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

// Mock is an in-memory Env. Callers cannot distinguish it from the live
// shape; it never touches the process environment.
type Mock struct {
	mu   sync.Mutex
	vars map[string]string
}

// NewMock returns a mock environment seeded with vars. A nil map is
// treated as empty.
func NewMock(vars map[string]string) *Mock {
	if vars == nil {
		vars = make(map[string]string)
	}
	return &Mock{vars: vars}
}

func (m *Mock) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vars[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *Mock) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[key] = value
	return nil
}

func (m *Mock) Unset(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vars, key)
	return nil
}

func (m *Mock) Close() {}
