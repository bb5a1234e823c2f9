// Package lore is the typed client for the upstream patch archive. The
// actor translates operations into HTTP exchanges through a Net handle
// and parses the responses; it caches nothing.
package lore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/netio"
)

const inboxSize = 32

// feedQuery selects patch and rfc messages and excludes replies.
const feedQuery = "?x=A&q=((s:patch+OR+s:rfc)+AND+NOT+s:re:)"

// Lore is the handle to an upstream API actor.
type Lore interface {
	// AvailableListsPage returns the page-th block of mailing lists in
	// upstream order. Past the end of the index it returns an empty slice.
	AvailableListsPage(ctx context.Context, page int) ([]domain.MailingList, error)
	// PatchFeedPage returns the page-th block of patch metadata for list,
	// newest first. Past the end of the feed it returns an empty slice.
	PatchFeedPage(ctx context.Context, list string, page int) ([]domain.PatchMeta, error)
	// RawPatch returns the mbox bytes of one patch.
	RawPatch(ctx context.Context, list, messageID string) ([]byte, error)
	// PatchHTML returns the rendered archive page of one patch.
	PatchHTML(ctx context.Context, list, messageID string) (string, error)
	// Close terminates the actor. Idempotent.
	Close()
}

type loreMsg struct {
	op        loreOp
	ctx       context.Context
	list      string
	messageID string
	page      int
	reply     chan loreReply
}

type loreOp int

const (
	opLists loreOp = iota
	opFeed
	opRaw
	opHTML
)

type loreReply struct {
	lists []domain.MailingList
	feed  []domain.PatchMeta
	body  []byte
	html  string
	err   error
}

type actor struct {
	inbox chan loreMsg
	done  chan struct{}
	once  sync.Once

	net    netio.Net
	domain string
}

// Spawn starts a live upstream client over net. baseDomain is the
// archive root, e.g. https://lore.kernel.org, without a trailing slash.
func Spawn(net netio.Net, baseDomain string) (Lore, <-chan struct{}) {
	a := &actor{
		inbox:  make(chan loreMsg, inboxSize),
		done:   make(chan struct{}),
		net:    net,
		domain: strings.TrimSuffix(baseDomain, "/"),
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

func (a *actor) handle(msg loreMsg) {
	switch msg.op {
	case opLists:
		lists, err := a.availableLists(msg.ctx, msg.page)
		msg.reply <- loreReply{lists: lists, err: err}
	case opFeed:
		feed, err := a.patchFeed(msg.ctx, msg.list, msg.page)
		msg.reply <- loreReply{feed: feed, err: err}
	case opRaw:
		body, err := a.rawPatch(msg.ctx, msg.list, msg.messageID)
		msg.reply <- loreReply{body: body, err: err}
	case opHTML:
		html, err := a.patchHTML(msg.ctx, msg.list, msg.messageID)
		msg.reply <- loreReply{html: html, err: err}
	}
}

var htmlAccept = map[string]string{
	"Accept": "text/html,application/xhtml+xml,application/xml",
}

func (a *actor) availableLists(ctx context.Context, page int) ([]domain.MailingList, error) {
	url := fmt.Sprintf("%s/?&o=%d", a.domain, page*domain.PageSize)
	resp, err := a.net.Get(ctx, url, htmlAccept)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp.Status, url); err != nil {
		return nil, err
	}
	return parseListsPage(string(resp.Body))
}

func (a *actor) patchFeed(ctx context.Context, list string, page int) ([]domain.PatchMeta, error) {
	url := fmt.Sprintf("%s/%s/%s&o=%d", a.domain, list, feedQuery, page*domain.PageSize)
	resp, err := a.net.Get(ctx, url, htmlAccept)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp.Status, url); err != nil {
		return nil, err
	}
	// The archive answers past-the-end offsets with a bare closing tag.
	if strings.TrimSpace(string(resp.Body)) == "</feed>" {
		return nil, nil
	}
	return parseFeedPage(resp.Body, list)
}

func (a *actor) rawPatch(ctx context.Context, list, messageID string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s/raw", a.domain, list, messageID)
	resp, err := a.net.Get(ctx, url, map[string]string{"Accept": "text/plain"})
	if err != nil {
		return nil, err
	}
	if resp.Status == 404 {
		return nil, fmt.Errorf("%w: patch %s/%s", domain.ErrNotFound, list, messageID)
	}
	if err := checkStatus(resp.Status, url); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (a *actor) patchHTML(ctx context.Context, list, messageID string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/", a.domain, list, messageID)
	resp, err := a.net.Get(ctx, url, htmlAccept)
	if err != nil {
		return "", err
	}
	if resp.Status == 404 {
		return "", fmt.Errorf("%w: patch %s/%s", domain.ErrNotFound, list, messageID)
	}
	if err := checkStatus(resp.Status, url); err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

func checkStatus(status int, url string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return fmt.Errorf("%w: unexpected status %d for %s", domain.ErrTransport, status, url)
}

func (a *actor) send(msg loreMsg) (loreReply, error) {
	select {
	case a.inbox <- msg:
	case <-a.done:
		return loreReply{}, domain.ErrPeerDead
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-a.done:
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return loreReply{}, domain.ErrPeerDead
		}
	}
}

func (a *actor) AvailableListsPage(ctx context.Context, page int) ([]domain.MailingList, error) {
	r, err := a.send(loreMsg{op: opLists, ctx: ctx, page: page, reply: make(chan loreReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.lists, r.err
}

func (a *actor) PatchFeedPage(ctx context.Context, list string, page int) ([]domain.PatchMeta, error) {
	r, err := a.send(loreMsg{op: opFeed, ctx: ctx, list: list, page: page, reply: make(chan loreReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.feed, r.err
}

func (a *actor) RawPatch(ctx context.Context, list, messageID string) ([]byte, error) {
	r, err := a.send(loreMsg{op: opRaw, ctx: ctx, list: list, messageID: messageID, reply: make(chan loreReply, 1)})
	if err != nil {
		return nil, err
	}
	return r.body, r.err
}

func (a *actor) PatchHTML(ctx context.Context, list, messageID string) (string, error) {
	r, err := a.send(loreMsg{op: opHTML, ctx: ctx, list: list, messageID: messageID, reply: make(chan loreReply, 1)})
	if err != nil {
		return "", err
	}
	return r.html, r.err
}

func (a *actor) Close() {
	a.once.Do(func() { close(a.done) })
}
