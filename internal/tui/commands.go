package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

// Command factories for async operations

const loadTimeout = 30 * time.Second

func loadListsCmd(d Deps, page int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		total, err := d.Lists.Len(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading mailing lists"}
		}
		start := page * domain.PageSize
		items, err := d.Lists.GetSlice(ctx, start, start+domain.PageSize)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading mailing lists"}
		}
		return ListsLoadedMsg{Items: items, Total: total, Page: page}
	}
}

func loadFeedCmd(d Deps, list string, page int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		total, err := d.Feeds.Len(ctx, list)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading feed for " + list}
		}
		start := page * domain.PageSize
		items, err := d.Feeds.GetSlice(ctx, list, start, start+domain.PageSize)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading feed for " + list}
		}
		return FeedLoadedMsg{List: list, Items: items, Total: total, Page: page}
	}
}

func loadPatchCmd(d Deps, list, messageID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		body, err := d.Patches.Get(ctx, list, messageID)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading patch " + messageID}
		}
		if err := d.Seen.MarkSeen(list, messageID); err != nil {
			d.Logger.Warn("marking patch seen failed", "message_id", messageID, "error", err)
		}
		return PatchLoadedMsg{List: list, MessageID: messageID, Body: string(body)}
	}
}

func refreshListsCmd(d Deps) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		if err := d.Lists.Refresh(ctx); err != nil {
			return ErrMsg{Err: err, Context: "refreshing mailing lists"}
		}
		return RefreshedMsg{}
	}
}

func refreshFeedCmd(d Deps, list string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		if err := d.Feeds.Refresh(ctx, list); err != nil {
			return ErrMsg{Err: err, Context: "refreshing feed for " + list}
		}
		return RefreshedMsg{}
	}
}

func invalidateCmd(d Deps, v view, list, messageID string) tea.Cmd {
	return func() tea.Msg {
		var err error
		switch v {
		case viewLists:
			err = d.Lists.Invalidate()
		case viewFeed:
			err = d.Feeds.Invalidate(list)
		case viewPatch:
			err = d.Patches.Invalidate(list, messageID)
		}
		if err != nil {
			return ErrMsg{Err: err, Context: "invalidating cache"}
		}
		return InvalidatedMsg{}
	}
}
