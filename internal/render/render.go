// Package render turns raw mbox bytes into displayable HTML. When a
// renderer command is configured the bytes are piped through it via the
// shell actor; otherwise the output is a <pre>-escaped fallback.
package render

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/shell"
)

const inboxSize = 16

// Render is the handle to a patch rendering actor.
type Render interface {
	// RenderPatch converts a raw mbox body into HTML.
	RenderPatch(ctx context.Context, body []byte) (string, error)
	// Close terminates the actor. Idempotent.
	Close()
}

type renderMsg struct {
	ctx   context.Context
	body  []byte
	reply chan renderReply
}

type renderReply struct {
	html string
	err  error
}

type actor struct {
	sh      shell.Shell
	logger  *slog.Logger
	program string
	args    []string

	inbox chan renderMsg
	done  chan struct{}
	once  sync.Once
}

// Spawn starts a live render actor. rendererCmd is the external
// renderer invocation, split on whitespace; empty means fallback only.
func Spawn(sh shell.Shell, logger *slog.Logger, rendererCmd string) (Render, <-chan struct{}) {
	a := &actor{
		sh:     sh,
		logger: logger,
		inbox:  make(chan renderMsg, inboxSize),
		done:   make(chan struct{}),
	}
	if fields := strings.Fields(rendererCmd); len(fields) > 0 {
		a.program = fields[0]
		a.args = fields[1:]
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

func (a *actor) handle(msg renderMsg) {
	out, err := a.render(msg.ctx, msg.body)
	msg.reply <- renderReply{html: out, err: err}
}

func (a *actor) render(ctx context.Context, body []byte) (string, error) {
	if a.program == "" {
		return fallback(body), nil
	}
	result, err := a.sh.Execute(ctx, a.program, a.args, body)
	if err != nil {
		return "", fmt.Errorf("renderer %s: %w", a.program, err)
	}
	if result.ExitCode != 0 {
		a.logger.Warn("renderer failed",
			"program", a.program,
			"exit_code", result.ExitCode,
			"stderr", strings.TrimSpace(string(result.Stderr)))
		return "", fmt.Errorf("renderer %s exited with %d", a.program, result.ExitCode)
	}
	return string(result.Stdout), nil
}

func fallback(body []byte) string {
	return "<pre>" + html.EscapeString(string(body)) + "</pre>"
}

func (a *actor) RenderPatch(ctx context.Context, body []byte) (string, error) {
	msg := renderMsg{ctx: ctx, body: body, reply: make(chan renderReply, 1)}
	select {
	case a.inbox <- msg:
	case <-a.done:
		return "", domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r.html, r.err
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r.html, r.err
		default:
			return "", domain.ErrPeerDead
		}
	}
}

func (a *actor) Close() {
	a.once.Do(func() { close(a.done) })
}
