// Package logging owns the per-session log file. Records from all
// actors funnel through one inbox, which assigns monotonic sequence
// numbers so the file preserves a global order across senders.
package logging

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

const (
	inboxSize = 64
	// ringSize bounds the in-memory record buffer served by GetLast.
	ringSize = 256
	// sessionStamp is the layout of name-embedded timestamps in log
	// file names, e.g. 20260806-142500.log.
	sessionStamp = "20060102-150405"
)

// Record is one log entry as kept in the ring buffer.
type Record struct {
	Seq     uint64
	Time    time.Time
	Level   slog.Level
	Message string
}

// Log is the handle to a logging actor.
type Log interface {
	// Log records message at level. Fire-and-forget; records below the
	// minimum level are discarded.
	Log(level slog.Level, message string)
	// Flush forces the session file to durable storage.
	Flush() error
	// CollectGarbage deletes log files whose name-embedded timestamp is
	// older than maxAge days. The current session file is kept.
	CollectGarbage(maxAge int) error
	// GetLast returns up to n most recent records, oldest first.
	GetLast(n int) []Record
	// SetLevel changes the minimum level.
	SetLevel(level slog.Level)
	// Close flushes and terminates the actor. Idempotent.
	Close()
}

// ParseLevel converts a string log level to slog.Level. Unknown values
// default to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type logMsg struct {
	op      logOp
	level   slog.Level
	message string
	maxAge  int
	n       int
	reply   chan logReply
}

type logOp int

const (
	opLog logOp = iota
	opFlush
	opGC
	opGetLast
	opSetLevel
)

type logReply struct {
	records []Record
	err     error
}

type actor struct {
	inbox chan logMsg
	done  chan struct{}
	once  sync.Once

	dir         string
	sessionName string
	file        *os.File
	writer      *bufio.Writer
	minLevel    slog.Level

	ring []Record
	seq  uint64
}

// Spawn starts a live logging actor writing to a fresh session file
// under dir. The directory is created if absent.
func Spawn(dir string, level slog.Level) (Log, <-chan struct{}, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	name := time.Now().UTC().Format(sessionStamp) + ".log"
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session log file: %w", err)
	}

	a := &actor{
		inbox:       make(chan logMsg, inboxSize),
		done:        make(chan struct{}),
		dir:         dir,
		sessionName: name,
		file:        file,
		writer:      bufio.NewWriter(file),
		minLevel:    level,
	}
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		a.loop()
	}()
	return a, exited, nil
}

func (a *actor) loop() {
	defer func() {
		a.writer.Flush()
		a.file.Sync()
		a.file.Close()
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

func (a *actor) handle(msg logMsg) {
	switch msg.op {
	case opLog:
		a.record(msg.level, msg.message)
	case opFlush:
		err := a.writer.Flush()
		if err == nil {
			err = a.file.Sync()
		}
		msg.reply <- logReply{err: err}
	case opGC:
		msg.reply <- logReply{err: a.collectGarbage(msg.maxAge)}
	case opGetLast:
		msg.reply <- logReply{records: a.last(msg.n)}
	case opSetLevel:
		a.minLevel = msg.level
	}
}

func (a *actor) record(level slog.Level, message string) {
	if level < a.minLevel {
		return
	}
	a.seq++
	rec := Record{Seq: a.seq, Time: time.Now().UTC(), Level: level, Message: message}
	a.ring = append(a.ring, rec)
	if len(a.ring) > ringSize {
		a.ring = a.ring[len(a.ring)-ringSize:]
	}
	fmt.Fprintf(a.writer, "%s %-5s #%d %s\n",
		rec.Time.Format(time.RFC3339), rec.Level, rec.Seq, rec.Message)
}

func (a *actor) last(n int) []Record {
	if n > len(a.ring) {
		n = len(a.ring)
	}
	out := make([]Record, n)
	copy(out, a.ring[len(a.ring)-n:])
	return out
}

// collectGarbage deletes aged session files by their name-embedded
// timestamps. Files with foreign names are left alone.
func (a *actor) collectGarbage(maxAge int) error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAge)
	var firstErr error
	for _, e := range entries {
		name := e.Name()
		if name == a.sessionName || !strings.HasSuffix(name, ".log") {
			continue
		}
		stamp, err := time.Parse(sessionStamp, strings.TrimSuffix(name, ".log"))
		if err != nil {
			continue
		}
		if stamp.Before(cutoff) {
			if err := os.Remove(filepath.Join(a.dir, name)); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (a *actor) send(msg logMsg) (logReply, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return logReply{}, domain.ErrPeerDead
	}
	if msg.reply == nil {
		return logReply{}, nil
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return logReply{}, domain.ErrPeerDead
		}
	}
}

func (a *actor) Log(level slog.Level, message string) {
	a.send(logMsg{op: opLog, level: level, message: message})
}

func (a *actor) Flush() error {
	r, err := a.send(logMsg{op: opFlush, reply: make(chan logReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) CollectGarbage(maxAge int) error {
	r, err := a.send(logMsg{op: opGC, maxAge: maxAge, reply: make(chan logReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) GetLast(n int) []Record {
	r, err := a.send(logMsg{op: opGetLast, n: n, reply: make(chan logReply, 1)})
	if err != nil {
		return nil
	}
	return r.records
}

func (a *actor) SetLevel(level slog.Level) {
	a.send(logMsg{op: opSetLevel, level: level})
}

func (a *actor) Close() {
	a.once.Do(func() { close(a.done) })
}
