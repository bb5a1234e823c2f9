package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/fsys"
	"github.com/lkml-tools/patch-hub/internal/lore"
)

// feedDirName holds one snapshot file per mailing list.
const feedDirName = "feed"

// FeedCache is the handle to the per-list feed actor. Feeds are kept
// newest first; refresh is incremental and stops at the join point with
// already-known items.
type FeedCache interface {
	// Len returns the number of cached items for list after ensuring load.
	Len(ctx context.Context, list string) (int, error)
	// Get returns the item at index, newest first. ok is false when index
	// is out of range.
	Get(ctx context.Context, list string, index int) (item domain.PatchMeta, ok bool, err error)
	// GetSlice returns the half-open range [start, end), clamped.
	GetSlice(ctx context.Context, list string, start, end int) ([]domain.PatchMeta, error)
	// Refresh brings the feed up to date, fetching only unknown items.
	Refresh(ctx context.Context, list string) error
	// Invalidate discards in-memory and on-disk state for list.
	Invalidate(list string) error
	// IsAvailable reports whether index is in range. Never fetches.
	IsAvailable(list string, index int) (bool, error)
	// Close terminates the actor. Idempotent.
	Close()
}

type feedMsg struct {
	op    feedOp
	ctx   context.Context
	list  string
	index int
	start int
	end   int
	reply chan feedReply
}

type feedOp int

const (
	feedLen feedOp = iota
	feedGet
	feedGetSlice
	feedRefresh
	feedInvalidate
	feedIsAvailable
)

type feedReply struct {
	n     int
	item  domain.PatchMeta
	ok    bool
	items []domain.PatchMeta
	err   error
}

type feedState struct {
	items          []domain.PatchMeta
	headLastUpdate time.Time
	loaded         bool
}

type feedActor struct {
	inbox chan feedMsg
	done  chan struct{}
	once  sync.Once

	fs     fsys.Fs
	api    lore.Lore
	logger *slog.Logger
	dir    string

	feeds map[string]*feedState
}

// SpawnFeedCache starts the feed actor. Snapshot files live under
// cacheDir/feed, one per list. No I/O happens until the first operation.
func SpawnFeedCache(fs fsys.Fs, api lore.Lore, logger *slog.Logger, cacheDir string) (FeedCache, <-chan struct{}) {
	a := &feedActor{
		inbox:  make(chan feedMsg, inboxSize),
		done:   make(chan struct{}),
		fs:     fs,
		api:    api,
		logger: logger,
		dir:    filepath.Join(cacheDir, feedDirName),
		feeds:  make(map[string]*feedState),
	}
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		a.loop()
	}()
	return a, exited
}

func (a *feedActor) loop() {
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

func (a *feedActor) handle(msg feedMsg) {
	switch msg.op {
	case feedLen:
		st, err := a.ensureLoad(msg.ctx, msg.list)
		if err != nil {
			msg.reply <- feedReply{err: err}
			return
		}
		msg.reply <- feedReply{n: len(st.items)}
	case feedGet:
		st, err := a.ensureLoad(msg.ctx, msg.list)
		if err == nil && msg.index >= 0 && msg.index < len(st.items) {
			msg.reply <- feedReply{item: st.items[msg.index], ok: true}
			return
		}
		msg.reply <- feedReply{err: err}
	case feedGetSlice:
		st, err := a.ensureLoad(msg.ctx, msg.list)
		if err != nil {
			msg.reply <- feedReply{err: err}
			return
		}
		msg.reply <- feedReply{items: clampSlice(st.items, msg.start, msg.end)}
	case feedRefresh:
		msg.reply <- feedReply{err: a.refresh(msg.ctx, msg.list)}
	case feedInvalidate:
		msg.reply <- feedReply{err: a.invalidate(msg.list)}
	case feedIsAvailable:
		st := a.state(msg.list)
		if !st.loaded {
			a.loadFromDisk(msg.list, st)
		}
		msg.reply <- feedReply{ok: msg.index >= 0 && msg.index < len(st.items)}
	}
}

func (a *feedActor) state(list string) *feedState {
	st, ok := a.feeds[list]
	if !ok {
		st = &feedState{}
		a.feeds[list] = st
	}
	return st
}

func (a *feedActor) path(list string) string {
	return filepath.Join(a.dir, sanitise(list)+".json")
}

// ensureLoad deserialises the list's snapshot on first use. A missing
// or unreadable file leaves the feed empty and triggers a refresh.
func (a *feedActor) ensureLoad(ctx context.Context, list string) (*feedState, error) {
	st := a.state(list)
	if st.loaded {
		return st, nil
	}
	if a.loadFromDisk(list, st) {
		return st, nil
	}
	st.loaded = true
	return st, a.refresh(ctx, list)
}

func (a *feedActor) loadFromDisk(list string, st *feedState) bool {
	data, err := a.fs.ReadFile(a.path(list))
	if err != nil {
		return false
	}
	var file domain.FeedFile
	if err := json.Unmarshal(data, &file); err != nil {
		a.logger.Warn("discarding unreadable feed snapshot", "list", list, "error", err)
		return false
	}
	st.items = file.Items
	st.headLastUpdate = file.HeadLastUpdate
	st.loaded = true
	return true
}

// refresh applies the incremental algorithm: fetch page 0, detect the
// no-change case by the head message id, otherwise walk pages until an
// already-known item appears (the join point) and prepend everything
// fetched before it.
func (a *feedActor) refresh(ctx context.Context, list string) error {
	st := a.state(list)
	if !st.loaded {
		a.loadFromDisk(list, st)
		st.loaded = true
	}

	page0, err := a.api.PatchFeedPage(ctx, list, 0)
	if err != nil {
		return err
	}
	if len(page0) == 0 {
		return nil
	}
	if len(st.items) > 0 && st.items[0].MessageID == page0[0].MessageID {
		a.logger.Debug("feed is fresh", "list", list)
		return nil
	}

	known := make(map[string]bool, len(st.items))
	for _, item := range st.items {
		known[item.MessageID] = true
	}

	var fresh []domain.PatchMeta
	page := page0
	joined := false
	for pageNo := 0; ; pageNo++ {
		if pageNo > 0 {
			page, err = a.api.PatchFeedPage(ctx, list, pageNo)
			if err != nil {
				return err
			}
		}
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			if known[item.MessageID] {
				joined = true
				break
			}
			known[item.MessageID] = true
			fresh = append(fresh, item)
		}
		if joined {
			break
		}
	}

	st.items = append(fresh, st.items...)
	if len(st.items) > 0 {
		st.headLastUpdate = st.items[0].LastUpdate
	}
	a.logger.Info("feed refreshed", "list", list, "new", len(fresh), "total", len(st.items))
	if err := a.persist(list, st); err != nil {
		a.logger.Warn("persisting feed snapshot failed", "list", list, "error", err)
	}
	return nil
}

func (a *feedActor) persist(list string, st *feedState) error {
	data, err := json.MarshalIndent(domain.FeedFile{
		HeadLastUpdate: st.headLastUpdate,
		Items:          st.items,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding feed snapshot for %s: %w", list, err)
	}
	if err := a.fs.MkdirAll(a.dir); err != nil {
		return err
	}
	path := a.path(list)
	tmp := path + ".tmp"
	if err := a.fs.WriteFile(tmp, data); err != nil {
		return err
	}
	return a.fs.Rename(tmp, path)
}

func (a *feedActor) invalidate(list string) error {
	a.feeds[list] = &feedState{loaded: true}
	err := a.fs.RemoveFile(a.path(list))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrIo, err)
}

func (a *feedActor) send(msg feedMsg) (feedReply, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return feedReply{}, domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return feedReply{}, domain.ErrPeerDead
		}
	}
}

func (a *feedActor) Len(ctx context.Context, list string) (int, error) {
	r, err := a.send(feedMsg{op: feedLen, ctx: ctx, list: list, reply: make(chan feedReply, 1)})
	if err != nil {
		return 0, err
	}
	return r.n, r.err
}

func (a *feedActor) Get(ctx context.Context, list string, index int) (domain.PatchMeta, bool, error) {
	r, err := a.send(feedMsg{op: feedGet, ctx: ctx, list: list, index: index, reply: make(chan feedReply, 1)})
	if err != nil {
		return domain.PatchMeta{}, false, err
	}
	return r.item, r.ok, r.err
}

func (a *feedActor) GetSlice(ctx context.Context, list string, start, end int) ([]domain.PatchMeta, error) {
	r, err := a.send(feedMsg{op: feedGetSlice, ctx: ctx, list: list, start: start, end: end, reply: make(chan feedReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.items, r.err
}

func (a *feedActor) Refresh(ctx context.Context, list string) error {
	r, err := a.send(feedMsg{op: feedRefresh, ctx: ctx, list: list, reply: make(chan feedReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *feedActor) Invalidate(list string) error {
	r, err := a.send(feedMsg{op: feedInvalidate, list: list, reply: make(chan feedReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *feedActor) IsAvailable(list string, index int) (bool, error) {
	r, err := a.send(feedMsg{op: feedIsAvailable, list: list, index: index, reply: make(chan feedReply, 1)})
	if err != nil {
		return false, err
	}
	return r.ok, r.err
}

func (a *feedActor) Close() {
	a.once.Do(func() { close(a.done) })
}
