package lore

import (
	"context"
	"fmt"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

// Mock is a programmable Lore. Responses come from per-argument tables;
// every call is recorded so tests can assert on upstream traffic.
type Mock struct {
	mu    sync.Mutex
	lists map[int][]domain.MailingList
	feeds map[string]map[int][]domain.PatchMeta
	raws  map[string][]byte
	htmls map[string]string
	calls []string
	fail  error
}

// NewMock returns an empty mock. Unprogrammed list and feed pages read
// as past-the-end (empty); unprogrammed patches read as not found.
func NewMock() *Mock {
	return &Mock{
		lists: make(map[int][]domain.MailingList),
		feeds: make(map[string]map[int][]domain.PatchMeta),
		raws:  make(map[string][]byte),
		htmls: make(map[string]string),
	}
}

// SetListsPage programs the response for one index page.
func (m *Mock) SetListsPage(page int, items []domain.MailingList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[page] = items
}

// SetFeedPage programs the response for one feed page of list.
func (m *Mock) SetFeedPage(list string, page int, items []domain.PatchMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feeds[list] == nil {
		m.feeds[list] = make(map[int][]domain.PatchMeta)
	}
	m.feeds[list][page] = items
}

// SetRaw programs the mbox bytes of one patch.
func (m *Mock) SetRaw(list, messageID string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raws[list+"/"+messageID] = body
}

// SetHTML programs the archive page of one patch.
func (m *Mock) SetHTML(list, messageID, page string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.htmls[list+"/"+messageID] = page
}

// FailWith makes every subsequent operation return err. A nil err
// restores normal behaviour.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns the recorded operations, oldest first.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many recorded calls start with prefix.
func (m *Mock) CallCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (m *Mock) AvailableListsPage(_ context.Context, page int) ([]domain.MailingList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("lists %d", page))
	if m.fail != nil {
		return nil, m.fail
	}
	return m.lists[page], nil
}

func (m *Mock) PatchFeedPage(_ context.Context, list string, page int) ([]domain.PatchMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("feed %s %d", list, page))
	if m.fail != nil {
		return nil, m.fail
	}
	return m.feeds[list][page], nil
}

func (m *Mock) RawPatch(_ context.Context, list, messageID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("raw %s %s", list, messageID))
	if m.fail != nil {
		return nil, m.fail
	}
	body, ok := m.raws[list+"/"+messageID]
	if !ok {
		return nil, fmt.Errorf("%w: patch %s/%s", domain.ErrNotFound, list, messageID)
	}
	return body, nil
}

func (m *Mock) PatchHTML(_ context.Context, list, messageID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("html %s %s", list, messageID))
	if m.fail != nil {
		return "", m.fail
	}
	page, ok := m.htmls[list+"/"+messageID]
	if !ok {
		return "", fmt.Errorf("%w: patch %s/%s", domain.ErrNotFound, list, messageID)
	}
	return page, nil
}

func (m *Mock) Close() {}
