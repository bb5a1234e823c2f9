// Package netio owns outbound HTTP. The actor wraps one http.Client;
// callers see plain verb methods and a Response value. No retries
// happen at this layer.
package netio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

const (
	inboxSize      = 32
	defaultTimeout = 30 * time.Second
	userAgent      = "patch-hub/1.0"
)

// Response is the outcome of one HTTP exchange.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Net is the handle to a networking actor.
type Net interface {
	Get(ctx context.Context, url string, headers map[string]string) (*Response, error)
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error)
	Put(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error)
	Patch(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error)
	Delete(ctx context.Context, url string, headers map[string]string) (*Response, error)
	// Close terminates the actor. Idempotent.
	Close()
}

type netMsg struct {
	ctx     context.Context
	method  string
	url     string
	headers map[string]string
	body    []byte
	reply   chan netReply
}

type netReply struct {
	resp *Response
	err  error
}

type actor struct {
	inbox  chan netMsg
	done   chan struct{}
	once   sync.Once
	client *http.Client
}

// Spawn starts a live networking actor with a default client.
func Spawn() (Net, <-chan struct{}) {
	return SpawnWithClient(&http.Client{Timeout: defaultTimeout})
}

// SpawnWithClient starts a live networking actor over client.
func SpawnWithClient(client *http.Client) (Net, <-chan struct{}) {
	a := &actor{
		inbox:  make(chan netMsg, inboxSize),
		done:   make(chan struct{}),
		client: client,
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

func (a *actor) handle(msg netMsg) {
	resp, err := a.do(msg)
	msg.reply <- netReply{resp: resp, err: err}
}

func (a *actor) do(msg netMsg) (*Response, error) {
	var reader io.Reader
	if msg.body != nil {
		reader = bytes.NewReader(msg.body)
	}
	req, err := http.NewRequestWithContext(msg.ctx, msg.method, msg.url, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", msg.method, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range msg.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", domain.ErrTransport, err)
	}

	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

func (a *actor) send(msg netMsg) (*Response, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return nil, domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r.resp, r.err
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r.resp, r.err
		default:
			return nil, domain.ErrPeerDead
		}
	}
}

func (a *actor) verb(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	return a.send(netMsg{
		ctx:     ctx,
		method:  method,
		url:     url,
		headers: headers,
		body:    body,
		reply:   make(chan netReply, 1),
	})
}

func (a *actor) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return a.verb(ctx, http.MethodGet, url, headers, nil)
}

func (a *actor) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error) {
	return a.verb(ctx, http.MethodPost, url, headers, body)
}

func (a *actor) Put(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error) {
	return a.verb(ctx, http.MethodPut, url, headers, body)
}

func (a *actor) Patch(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error) {
	return a.verb(ctx, http.MethodPatch, url, headers, body)
}

func (a *actor) Delete(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return a.verb(ctx, http.MethodDelete, url, headers, nil)
}

func (a *actor) Close() {
	a.once.Do(func() { close(a.done) })
}
