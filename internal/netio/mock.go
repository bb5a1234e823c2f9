package netio

import (
	"context"
	"fmt"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

// Mock is a programmable Net keyed by "METHOD url". Unprogrammed URLs
// answer with a transport error.
type Mock struct {
	mu        sync.Mutex
	responses map[string]*Response
	requests  []string
}

// NewMock returns a mock network seeded with responses keyed by
// "METHOD url", e.g. "GET https://lore.kernel.org/?&o=0".
func NewMock(responses map[string]*Response) *Mock {
	if responses == nil {
		responses = make(map[string]*Response)
	}
	return &Mock{responses: responses}
}

// Program installs a response for "METHOD url".
func (m *Mock) Program(method, url string, resp *Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method+" "+url] = resp
}

// Requests returns every "METHOD url" seen so far, in order.
func (m *Mock) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

func (m *Mock) lookup(method, url string) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, method+" "+url)
	resp, ok := m.responses[method+" "+url]
	if !ok {
		return nil, fmt.Errorf("%w: no mock response for %s %s", domain.ErrTransport, method, url)
	}
	return resp, nil
}

func (m *Mock) Get(_ context.Context, url string, _ map[string]string) (*Response, error) {
	return m.lookup("GET", url)
}

func (m *Mock) Post(_ context.Context, url string, _ map[string]string, _ []byte) (*Response, error) {
	return m.lookup("POST", url)
}

func (m *Mock) Put(_ context.Context, url string, _ map[string]string, _ []byte) (*Response, error) {
	return m.lookup("PUT", url)
}

func (m *Mock) Patch(_ context.Context, url string, _ map[string]string, _ []byte) (*Response, error) {
	return m.lookup("PATCH", url)
}

func (m *Mock) Delete(_ context.Context, url string, _ map[string]string) (*Response, error) {
	return m.lookup("DELETE", url)
}

func (m *Mock) Close() {}
