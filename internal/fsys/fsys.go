// Package fsys owns all file and directory I/O behind an actor. Open
// handles are cached by path and reference counted so repeated opens of
// the same file share one OS descriptor.
package fsys

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

const inboxSize = 64

// Fs is the handle to a filesystem actor.
type Fs interface {
	// OpenRead opens path for reading. The returned File shares an OS
	// handle with every other open of the same path through this Fs.
	OpenRead(path string) (File, error)
	// OpenWrite opens path for writing, truncating and creating it.
	OpenWrite(path string) (File, error)
	// OpenAppend opens path for appending, creating it if absent.
	OpenAppend(path string) (File, error)
	// RemoveFile deletes path and evicts its cached handle.
	RemoveFile(path string) error
	// ReadDir returns the entry names of the directory at path.
	ReadDir(path string) ([]string, error)
	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) error
	// RemoveAll removes path recursively.
	RemoveAll(path string) error
	// Rename moves oldPath to newPath. Used for atomic snapshot
	// replacement (write temp, rename over).
	Rename(oldPath, newPath string) error
	// ReadFile reads the whole content of path.
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces the content of path, creating it if absent.
	WriteFile(path string, data []byte) error
	// Close terminates the actor. Idempotent.
	Close()
}

// File is one reference to a cached handle. Reads always return the
// whole current content; writes are visible to subsequent reads through
// the same Fs. The last Close of a path releases the OS handle.
type File interface {
	ReadAll() ([]byte, error)
	Write(p []byte) (int, error)
	Sync() error
	Close() error
}

type openMode int

const (
	modeRead openMode = iota
	modeWrite
	modeAppend
)

type fsMsg struct {
	op    fsOp
	path  string
	path2 string
	mode  openMode
	data  []byte
	reply chan fsReply
}

type fsOp int

const (
	opOpen fsOp = iota
	opFileRead
	opFileWrite
	opFileSync
	opFileClose
	opRemoveFile
	opReadDir
	opMkdirAll
	opRemoveAll
	opRename
	opReadFile
	opWriteFile
)

type fsReply struct {
	data    []byte
	entries []string
	n       int
	err     error
}

type cachedHandle struct {
	file *os.File
	refs int
}

type actor struct {
	inbox   chan fsMsg
	done    chan struct{}
	once    sync.Once
	handles map[string]*cachedHandle
}

// Spawn starts a live filesystem actor.
func Spawn() (Fs, <-chan struct{}) {
	a := &actor{
		inbox:   make(chan fsMsg, inboxSize),
		done:    make(chan struct{}),
		handles: make(map[string]*cachedHandle),
	}
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		a.loop()
	}()
	return a, exited
}

func (a *actor) loop() {
	defer func() {
		for path, h := range a.handles {
			h.file.Close()
			delete(a.handles, path)
		}
	}()
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

func (a *actor) handle(msg fsMsg) {
	switch msg.op {
	case opOpen:
		msg.reply <- fsReply{err: a.open(msg.path, msg.mode)}
	case opFileRead:
		data, err := a.readCached(msg.path)
		msg.reply <- fsReply{data: data, err: err}
	case opFileWrite:
		n, err := a.writeCached(msg.path, msg.data)
		msg.reply <- fsReply{n: n, err: err}
	case opFileSync:
		h, ok := a.handles[msg.path]
		if !ok {
			msg.reply <- fsReply{err: os.ErrClosed}
			return
		}
		msg.reply <- fsReply{err: h.file.Sync()}
	case opFileClose:
		msg.reply <- fsReply{err: a.release(msg.path)}
	case opRemoveFile:
		a.evict(msg.path)
		msg.reply <- fsReply{err: os.Remove(msg.path)}
	case opReadDir:
		entries, err := os.ReadDir(msg.path)
		if err != nil {
			msg.reply <- fsReply{err: err}
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		msg.reply <- fsReply{entries: names}
	case opMkdirAll:
		msg.reply <- fsReply{err: os.MkdirAll(msg.path, 0755)}
	case opRemoveAll:
		for path := range a.handles {
			if path == msg.path || isUnder(path, msg.path) {
				a.evict(path)
			}
		}
		msg.reply <- fsReply{err: os.RemoveAll(msg.path)}
	case opRename:
		a.evict(msg.path)
		a.evict(msg.path2)
		msg.reply <- fsReply{err: os.Rename(msg.path, msg.path2)}
	case opReadFile:
		if h, ok := a.handles[msg.path]; ok {
			data, err := readWhole(h.file)
			msg.reply <- fsReply{data: data, err: err}
			return
		}
		data, err := os.ReadFile(msg.path)
		msg.reply <- fsReply{data: data, err: err}
	case opWriteFile:
		a.evict(msg.path)
		msg.reply <- fsReply{err: os.WriteFile(msg.path, msg.data, 0644)}
	}
}

func isUnder(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// open establishes or reuses a cached handle for path.
func (a *actor) open(path string, mode openMode) error {
	if h, ok := a.handles[path]; ok {
		h.refs++
		if mode == modeWrite {
			if err := h.file.Truncate(0); err != nil {
				h.refs--
				return err
			}
		}
		return nil
	}
	flags := os.O_RDONLY
	switch mode {
	case modeWrite:
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case modeAppend:
		flags = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return err
	}
	a.handles[path] = &cachedHandle{file: f, refs: 1}
	return nil
}

func (a *actor) readCached(path string) ([]byte, error) {
	h, ok := a.handles[path]
	if !ok {
		return nil, os.ErrClosed
	}
	return readWhole(h.file)
}

func readWhole(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// writeCached appends data to the cached handle. Write-mode opens
// truncate first, so sequential writes land where callers expect.
func (a *actor) writeCached(path string, data []byte) (int, error) {
	h, ok := a.handles[path]
	if !ok {
		return 0, os.ErrClosed
	}
	if _, err := h.file.Seek(0, io.SeekEnd); err != nil {
		return 0, err
	}
	return h.file.Write(data)
}

func (a *actor) release(path string) error {
	h, ok := a.handles[path]
	if !ok {
		return nil
	}
	h.refs--
	if h.refs <= 0 {
		delete(a.handles, path)
		return h.file.Close()
	}
	return nil
}

func (a *actor) evict(path string) {
	if h, ok := a.handles[path]; ok {
		h.file.Close()
		delete(a.handles, path)
	}
}

func (a *actor) send(msg fsMsg) (fsReply, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return fsReply{}, domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return fsReply{}, domain.ErrPeerDead
		}
	}
}

type liveFile struct {
	a    *actor
	path string
}

func (f *liveFile) ReadAll() ([]byte, error) {
	r, err := f.a.send(fsMsg{op: opFileRead, path: f.path, reply: make(chan fsReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.data, r.err
}

func (f *liveFile) Write(p []byte) (int, error) {
	r, err := f.a.send(fsMsg{op: opFileWrite, path: f.path, data: p, reply: make(chan fsReply, 1)})
	if err != nil {
		return 0, err
	}
	return r.n, r.err
}

func (f *liveFile) Sync() error {
	r, err := f.a.send(fsMsg{op: opFileSync, path: f.path, reply: make(chan fsReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (f *liveFile) Close() error {
	r, err := f.a.send(fsMsg{op: opFileClose, path: f.path, reply: make(chan fsReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) openFile(path string, mode openMode) (File, error) {
	r, err := a.send(fsMsg{op: opOpen, path: path, mode: mode, reply: make(chan fsReply, 1)})
	if err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return &liveFile{a: a, path: path}, nil
}

func (a *actor) OpenRead(path string) (File, error)   { return a.openFile(path, modeRead) }
func (a *actor) OpenWrite(path string) (File, error)  { return a.openFile(path, modeWrite) }
func (a *actor) OpenAppend(path string) (File, error) { return a.openFile(path, modeAppend) }

func (a *actor) RemoveFile(path string) error {
	r, err := a.send(fsMsg{op: opRemoveFile, path: path, reply: make(chan fsReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) ReadDir(path string) ([]string, error) {
	r, err := a.send(fsMsg{op: opReadDir, path: path, reply: make(chan fsReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.entries, r.err
}

func (a *actor) MkdirAll(path string) error {
	r, err := a.send(fsMsg{op: opMkdirAll, path: path, reply: make(chan fsReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) RemoveAll(path string) error {
	r, err := a.send(fsMsg{op: opRemoveAll, path: path, reply: make(chan fsReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) Rename(oldPath, newPath string) error {
	r, err := a.send(fsMsg{op: opRename, path: oldPath, path2: newPath, reply: make(chan fsReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) ReadFile(path string) ([]byte, error) {
	r, err := a.send(fsMsg{op: opReadFile, path: path, reply: make(chan fsReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.data, r.err
}

func (a *actor) WriteFile(path string, data []byte) error {
	r, err := a.send(fsMsg{op: opWriteFile, path: path, data: data, reply: make(chan fsReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) Close() {
	a.once.Do(func() { close(a.done) })
}
