package app

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

// ListsCommand returns one tab-separated row per mailing list on the
// requested page.
func (a *App) ListsCommand(ctx context.Context, page, count int) (string, error) {
	start, end, err := pageBounds(page, count)
	if err != nil {
		return "", err
	}
	items, err := a.h.Lists.GetSlice(ctx, start, end)
	if err != nil {
		return "", err
	}
	return formatLists(items, outputWidth()), nil
}

// FeedCommand returns one tab-separated row per patch on the requested
// page of the list's feed.
func (a *App) FeedCommand(ctx context.Context, list string, page, count int) (string, error) {
	start, end, err := pageBounds(page, count)
	if err != nil {
		return "", err
	}
	items, err := a.h.Feeds.GetSlice(ctx, list, start, end)
	if err != nil {
		return "", err
	}
	return formatFeed(items, outputWidth()), nil
}

// PatchCommand returns the patch body, rendered to HTML when asked.
// A successful fetch marks the patch as seen.
func (a *App) PatchCommand(ctx context.Context, list, messageID string, html bool) (string, error) {
	body, err := a.h.Patches.Get(ctx, list, messageID)
	if err != nil {
		return "", err
	}
	out := string(body)
	if html {
		out, err = a.h.Render.RenderPatch(ctx, body)
		if err != nil {
			return "", err
		}
	}
	if err := a.h.Seen.MarkSeen(list, messageID); err != nil {
		a.h.Logger.Warn("marking patch seen failed", "list", list, "message_id", messageID, "error", err)
	}
	return out, nil
}

func formatLists(items []domain.MailingList, width int) string {
	var b strings.Builder
	for _, item := range items {
		row := item.Name + "\t" + item.Description + "\t" + item.LastUpdate.UTC().Format(time.RFC3339)
		b.WriteString(clip(row, width))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatFeed(items []domain.PatchMeta, width int) string {
	var b strings.Builder
	for _, item := range items {
		row := strings.Join([]string{
			item.Title,
			item.Author + " <" + item.Email + ">",
			"v" + strconv.Itoa(item.Version),
			item.LastUpdate.UTC().Format(time.RFC3339),
			item.MessageID,
		}, "\t")
		b.WriteString(clip(row, width))
		b.WriteByte('\n')
	}
	return b.String()
}

// outputWidth reports the terminal width, or 0 when stdout is not a
// terminal (rows are then emitted unclipped, for piping).
func outputWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 0
	}
	return w
}

func clip(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width])
}
