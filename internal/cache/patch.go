package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/fsys"
	"github.com/lkml-tools/patch-hub/internal/lore"
)

const (
	// patchDirName holds one mbox file per patch, grouped by list.
	patchDirName = "patch"
	// lruCapacity bounds the in-memory tier.
	lruCapacity = 50
)

// PatchCache is the handle to the patch body actor. Bodies are
// immutable once observed; the disk tier is permanent, the memory tier
// is a bounded LRU.
type PatchCache interface {
	// Get returns the mbox bytes of a patch, fetching and persisting it
	// on first access.
	Get(ctx context.Context, list, messageID string) ([]byte, error)
	// Invalidate removes a patch from memory and disk.
	Invalidate(list, messageID string) error
	// IsAvailable reports whether the patch is in memory or on disk.
	// Never fetches.
	IsAvailable(list, messageID string) (bool, error)
	// Close terminates the actor. Idempotent.
	Close()
}

type patchMsg struct {
	op        patchOp
	ctx       context.Context
	list      string
	messageID string
	reply     chan patchReply
}

type patchOp int

const (
	patchGet patchOp = iota
	patchInvalidate
	patchIsAvailable
)

type patchReply struct {
	body []byte
	ok   bool
	err  error
}

type lruEntry struct {
	key  string
	body []byte
}

type patchActor struct {
	inbox chan patchMsg
	done  chan struct{}
	once  sync.Once

	fs     fsys.Fs
	api    lore.Lore
	logger *slog.Logger
	dir    string

	order   *list.List
	entries map[string]*list.Element
}

// SpawnPatchCache starts the patch body actor. Files live under
// cacheDir/patch/<list>/<message_id>.mbox.
func SpawnPatchCache(fs fsys.Fs, api lore.Lore, logger *slog.Logger, cacheDir string) (PatchCache, <-chan struct{}) {
	a := &patchActor{
		inbox:   make(chan patchMsg, inboxSize),
		done:    make(chan struct{}),
		fs:      fs,
		api:     api,
		logger:  logger,
		dir:     filepath.Join(cacheDir, patchDirName),
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		a.loop()
	}()
	return a, exited
}

func (a *patchActor) loop() {
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

func (a *patchActor) handle(msg patchMsg) {
	switch msg.op {
	case patchGet:
		body, err := a.get(msg.ctx, msg.list, msg.messageID)
		msg.reply <- patchReply{body: body, err: err}
	case patchInvalidate:
		msg.reply <- patchReply{err: a.invalidate(msg.list, msg.messageID)}
	case patchIsAvailable:
		msg.reply <- patchReply{ok: a.isAvailable(msg.list, msg.messageID)}
	}
}

func key(list, messageID string) string {
	return list + "/" + messageID
}

func (a *patchActor) path(list, messageID string) string {
	return filepath.Join(a.dir, sanitise(list), sanitise(messageID)+".mbox")
}

func (a *patchActor) get(ctx context.Context, list, messageID string) ([]byte, error) {
	k := key(list, messageID)
	if el, ok := a.entries[k]; ok {
		a.order.MoveToFront(el)
		return el.Value.(*lruEntry).body, nil
	}

	path := a.path(list, messageID)
	if body, err := a.fs.ReadFile(path); err == nil {
		a.admit(k, body)
		return body, nil
	}

	body, err := a.api.RawPatch(ctx, list, messageID)
	if err != nil {
		return nil, err
	}
	if err := a.persist(path, body); err != nil {
		a.logger.Warn("persisting patch failed, keeping it in memory", "list", list, "message_id", messageID, "error", err)
	} else {
		a.logger.Debug("patch fetched and persisted", "list", list, "message_id", messageID, "bytes", len(body))
	}
	a.admit(k, body)
	return body, nil
}

func (a *patchActor) persist(path string, body []byte) error {
	if err := a.fs.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	return a.fs.WriteFile(path, body)
}

// admit puts a body at the front of the LRU, evicting the tail when the
// memory tier is full. The disk tier is unaffected by eviction.
func (a *patchActor) admit(k string, body []byte) {
	if el, ok := a.entries[k]; ok {
		a.order.MoveToFront(el)
		return
	}
	a.entries[k] = a.order.PushFront(&lruEntry{key: k, body: body})
	if a.order.Len() > lruCapacity {
		tail := a.order.Back()
		a.order.Remove(tail)
		delete(a.entries, tail.Value.(*lruEntry).key)
	}
}

func (a *patchActor) invalidate(list, messageID string) error {
	k := key(list, messageID)
	if el, ok := a.entries[k]; ok {
		a.order.Remove(el)
		delete(a.entries, k)
	}
	err := a.fs.RemoveFile(a.path(list, messageID))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrIo, err)
}

func (a *patchActor) isAvailable(list, messageID string) bool {
	if _, ok := a.entries[key(list, messageID)]; ok {
		return true
	}
	entries, err := a.fs.ReadDir(filepath.Join(a.dir, sanitise(list)))
	if err != nil {
		return false
	}
	want := sanitise(messageID) + ".mbox"
	for _, name := range entries {
		if name == want {
			return true
		}
	}
	return false
}

func (a *patchActor) send(msg patchMsg) (patchReply, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return patchReply{}, domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return patchReply{}, domain.ErrPeerDead
		}
	}
}

func (a *patchActor) Get(ctx context.Context, list, messageID string) ([]byte, error) {
	r, err := a.send(patchMsg{op: patchGet, ctx: ctx, list: list, messageID: messageID, reply: make(chan patchReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.body, r.err
}

func (a *patchActor) Invalidate(list, messageID string) error {
	r, err := a.send(patchMsg{op: patchInvalidate, list: list, messageID: messageID, reply: make(chan patchReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *patchActor) IsAvailable(list, messageID string) (bool, error) {
	r, err := a.send(patchMsg{op: patchIsAvailable, list: list, messageID: messageID, reply: make(chan patchReply, 1)})
	if err != nil {
		return false, err
	}
	return r.ok, r.err
}

func (a *patchActor) Close() {
	a.once.Do(func() { close(a.done) })
}
