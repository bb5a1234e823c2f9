// Package shell runs external programs on behalf of other components.
// The actor serialises executions; callers get captured output and the
// exit code.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

const inboxSize = 16

// Result is the outcome of one external program run.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Shell is the handle to a process execution actor.
type Shell interface {
	// Execute runs program with args, feeding stdin when non-nil. A
	// non-zero exit is reported in Result, not as an error; errors mean
	// the program could not run at all.
	Execute(ctx context.Context, program string, args []string, stdin []byte) (Result, error)
	// Close terminates the actor. Idempotent.
	Close()
}

type shellMsg struct {
	ctx     context.Context
	program string
	args    []string
	stdin   []byte
	reply   chan shellReply
}

type shellReply struct {
	result Result
	err    error
}

type actor struct {
	inbox chan shellMsg
	done  chan struct{}
	once  sync.Once
}

// Spawn starts a live shell actor.
func Spawn() (Shell, <-chan struct{}) {
	a := &actor{
		inbox: make(chan shellMsg, inboxSize),
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

func (a *actor) handle(msg shellMsg) {
	result, err := run(msg.ctx, msg.program, msg.args, msg.stdin)
	msg.reply <- shellReply{result: result, err: err}
}

func run(ctx context.Context, program string, args []string, stdin []byte) (Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}

func (a *actor) Execute(ctx context.Context, program string, args []string, stdin []byte) (Result, error) {
	msg := shellMsg{ctx: ctx, program: program, args: args, stdin: stdin, reply: make(chan shellReply, 1)}
	select {
	case a.inbox <- msg:
	case <-a.done:
		return Result{}, domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r.result, r.err
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r.result, r.err
		default:
			return Result{}, domain.ErrPeerDead
		}
	}
}

func (a *actor) Close() {
	a.once.Do(func() { close(a.done) })
}
