package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/fsys"
	"github.com/lkml-tools/patch-hub/internal/lore"
)

// listsFileName is the snapshot of all mailing lists under cache_dir.
const listsFileName = "mailing_lists.json"

// MailingListCache is the handle to the mailing list snapshot actor.
// The snapshot is the full set of lists sorted by name; the head item's
// LastUpdate doubles as the freshness token against upstream.
type MailingListCache interface {
	// Len returns the number of cached lists after ensuring load.
	Len(ctx context.Context) (int, error)
	// Get returns the list at index in sorted order. ok is false when
	// index is out of range.
	Get(ctx context.Context, index int) (item domain.MailingList, ok bool, err error)
	// GetSlice returns the half-open range [start, end), clamped.
	GetSlice(ctx context.Context, start, end int) ([]domain.MailingList, error)
	// Refresh repopulates the snapshot from upstream unless it is fresh.
	Refresh(ctx context.Context) error
	// Invalidate discards in-memory and on-disk state.
	Invalidate() error
	// IsAvailable reports whether index is in range. Never fetches.
	IsAvailable(index int) (bool, error)
	// Close terminates the actor. Idempotent.
	Close()
}

type mlMsg struct {
	op    mlOp
	ctx   context.Context
	index int
	start int
	end   int
	reply chan mlReply
}

type mlOp int

const (
	mlLen mlOp = iota
	mlGet
	mlGetSlice
	mlRefresh
	mlInvalidate
	mlIsAvailable
)

type mlReply struct {
	n     int
	item  domain.MailingList
	ok    bool
	items []domain.MailingList
	err   error
}

type mlActor struct {
	inbox chan mlMsg
	done  chan struct{}
	once  sync.Once

	fs     fsys.Fs
	api    lore.Lore
	logger *slog.Logger
	path   string

	items  []domain.MailingList
	loaded bool
}

// SpawnMailingListCache starts the mailing list snapshot actor. The
// snapshot file lives directly under cacheDir. No I/O happens until the
// first operation.
func SpawnMailingListCache(fs fsys.Fs, api lore.Lore, logger *slog.Logger, cacheDir string) (MailingListCache, <-chan struct{}) {
	a := &mlActor{
		inbox:  make(chan mlMsg, inboxSize),
		done:   make(chan struct{}),
		fs:     fs,
		api:    api,
		logger: logger,
		path:   filepath.Join(cacheDir, listsFileName),
	}
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		a.loop()
	}()
	return a, exited
}

func (a *mlActor) loop() {
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

func (a *mlActor) handle(msg mlMsg) {
	switch msg.op {
	case mlLen:
		err := a.ensureLoad(msg.ctx)
		msg.reply <- mlReply{n: len(a.items), err: err}
	case mlGet:
		err := a.ensureLoad(msg.ctx)
		if err == nil && msg.index >= 0 && msg.index < len(a.items) {
			msg.reply <- mlReply{item: a.items[msg.index], ok: true}
			return
		}
		msg.reply <- mlReply{err: err}
	case mlGetSlice:
		err := a.ensureLoad(msg.ctx)
		if err != nil {
			msg.reply <- mlReply{err: err}
			return
		}
		msg.reply <- mlReply{items: clampSlice(a.items, msg.start, msg.end)}
	case mlRefresh:
		msg.reply <- mlReply{err: a.refresh(msg.ctx)}
	case mlInvalidate:
		msg.reply <- mlReply{err: a.invalidate()}
	case mlIsAvailable:
		if !a.loaded {
			a.loadFromDisk()
		}
		msg.reply <- mlReply{ok: msg.index >= 0 && msg.index < len(a.items)}
	}
}

// clampSlice copies the half-open range [start, end) out of items,
// clamped to the valid index space.
func clampSlice[T any](items []T, start, end int) []T {
	if start < 0 {
		start = 0
	}
	if end > len(items) {
		end = len(items)
	}
	if start >= end {
		return nil
	}
	return append([]T(nil), items[start:end]...)
}

// ensureLoad deserialises the snapshot on first use. A missing or
// unreadable file leaves the cache empty and triggers a refresh.
func (a *mlActor) ensureLoad(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	if a.loadFromDisk() {
		return nil
	}
	a.loaded = true
	return a.refresh(ctx)
}

// loadFromDisk reads the snapshot file into memory. Returns false when
// the file is absent or does not parse.
func (a *mlActor) loadFromDisk() bool {
	data, err := a.fs.ReadFile(a.path)
	if err != nil {
		return false
	}
	var file domain.ListsFile
	if err := json.Unmarshal(data, &file); err != nil {
		a.logger.Warn("discarding unreadable mailing list snapshot", "path", a.path, "error", err)
		return false
	}
	a.items = file.Items
	a.loaded = true
	return true
}

func (a *mlActor) refresh(ctx context.Context) error {
	if !a.loaded {
		a.loadFromDisk()
		a.loaded = true
	}
	page0, err := a.api.AvailableListsPage(ctx, 0)
	if err != nil {
		return err
	}
	if len(page0) == 0 {
		return nil
	}
	if len(a.items) > 0 && a.items[0].LastUpdate.Equal(page0[0].LastUpdate) {
		a.logger.Debug("mailing list snapshot is fresh")
		return nil
	}

	all := append([]domain.MailingList(nil), page0...)
	for page := 1; ; page++ {
		items, err := a.api.AvailableListsPage(ctx, page)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	a.items = all
	a.logger.Info("mailing list snapshot refreshed", "lists", len(all))
	if err := a.persist(); err != nil {
		a.logger.Warn("persisting mailing list snapshot failed", "error", err)
	}
	return nil
}

func (a *mlActor) persist() error {
	file := domain.ListsFile{Items: a.items}
	if len(a.items) > 0 {
		file.HeadLastUpdate = a.items[0].LastUpdate
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mailing list snapshot: %w", err)
	}
	if err := a.fs.MkdirAll(filepath.Dir(a.path)); err != nil {
		return err
	}
	tmp := a.path + ".tmp"
	if err := a.fs.WriteFile(tmp, data); err != nil {
		return err
	}
	return a.fs.Rename(tmp, a.path)
}

func (a *mlActor) invalidate() error {
	a.items = nil
	a.loaded = true
	err := a.fs.RemoveFile(a.path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrIo, err)
}

func (a *mlActor) send(msg mlMsg) (mlReply, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return mlReply{}, domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return mlReply{}, domain.ErrPeerDead
		}
	}
}

func (a *mlActor) Len(ctx context.Context) (int, error) {
	r, err := a.send(mlMsg{op: mlLen, ctx: ctx, reply: make(chan mlReply, 1)})
	if err != nil {
		return 0, err
	}
	return r.n, r.err
}

func (a *mlActor) Get(ctx context.Context, index int) (domain.MailingList, bool, error) {
	r, err := a.send(mlMsg{op: mlGet, ctx: ctx, index: index, reply: make(chan mlReply, 1)})
	if err != nil {
		return domain.MailingList{}, false, err
	}
	return r.item, r.ok, r.err
}

func (a *mlActor) GetSlice(ctx context.Context, start, end int) ([]domain.MailingList, error) {
	r, err := a.send(mlMsg{op: mlGetSlice, ctx: ctx, start: start, end: end, reply: make(chan mlReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.items, r.err
}

func (a *mlActor) Refresh(ctx context.Context) error {
	r, err := a.send(mlMsg{op: mlRefresh, ctx: ctx, reply: make(chan mlReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *mlActor) Invalidate() error {
	r, err := a.send(mlMsg{op: mlInvalidate, reply: make(chan mlReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *mlActor) IsAvailable(index int) (bool, error) {
	r, err := a.send(mlMsg{op: mlIsAvailable, index: index, reply: make(chan mlReply, 1)})
	if err != nil {
		return false, err
	}
	return r.ok, r.err
}

func (a *mlActor) Close() {
	a.once.Do(func() { close(a.done) })
}
