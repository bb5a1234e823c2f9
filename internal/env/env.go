// Package env exposes the process environment as an actor so that other
// components read and write variables through a single owner.
package env

import (
	"os"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

const inboxSize = 32

// Env is the handle to an environment actor. Handles are cheap to copy;
// all copies share one inbox.
type Env interface {
	// Get returns the value of key, or domain.ErrNotFound if unset.
	Get(key string) (string, error)
	// Set assigns value to key.
	Set(key, value string) error
	// Unset removes key.
	Unset(key string) error
	// Close terminates the actor. Idempotent.
	Close()
}

type envMsg struct {
	op    envOp
	key   string
	value string
	reply chan envReply
}

type envOp int

const (
	opGet envOp = iota
	opSet
	opUnset
)

type envReply struct {
	value string
	err   error
}

type actor struct {
	inbox chan envMsg
	done  chan struct{}
	once  sync.Once
}

// Spawn starts a live environment actor backed by the process environment.
// The returned channel closes when the actor goroutine exits.
func Spawn() (Env, <-chan struct{}) {
	a := &actor{
		inbox: make(chan envMsg, inboxSize),
		done:  make(chan struct{}),
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
			// Drain what was queued before close.
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

func (a *actor) handle(msg envMsg) {
	switch msg.op {
	case opGet:
		v, ok := os.LookupEnv(msg.key)
		if !ok {
			msg.reply <- envReply{err: domain.ErrNotFound}
			return
		}
		msg.reply <- envReply{value: v}
	case opSet:
		msg.reply <- envReply{err: os.Setenv(msg.key, msg.value)}
	case opUnset:
		msg.reply <- envReply{err: os.Unsetenv(msg.key)}
	}
}

func (a *actor) send(msg envMsg) (envReply, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return envReply{}, domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-a.done:
		// The handler may have replied just before shutdown.
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return envReply{}, domain.ErrPeerDead
		}
	}
}

func (a *actor) Get(key string) (string, error) {
	r, err := a.send(envMsg{op: opGet, key: key, reply: make(chan envReply, 1)})
	if err != nil {
		return "", err
	}
	return r.value, r.err
}

func (a *actor) Set(key, value string) error {
	r, err := a.send(envMsg{op: opSet, key: key, value: value, reply: make(chan envReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) Unset(key string) error {
	r, err := a.send(envMsg{op: opUnset, key: key, reply: make(chan envReply, 1)})
	if err != nil {
		return err
	}
	return r.err
}

func (a *actor) Close() {
	a.once.Do(func() { close(a.done) })
}
