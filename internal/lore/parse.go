package lore

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

// listStamp is the layout of timestamps in the archive's list index,
// e.g. 2026-07-14 13:47. Times are UTC.
const listStamp = "2006-01-02 15:04"

// parseListsPage extracts mailing lists from the archive index page.
// Entries are three consecutive lines: a `*` line carrying the last
// activity timestamp, an anchor line carrying the name, and a free-form
// description line.
func parseListsPage(page string) ([]domain.MailingList, error) {
	var items []domain.MailingList
	lines := strings.Split(page, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: malformed index entry %q", domain.ErrParse, line)
		}
		lastUpdate, err := time.ParseInLocation(listStamp, fields[1]+" "+fields[2], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp in index entry %q: %v", domain.ErrParse, line, err)
		}
		if i+2 >= len(lines) {
			return nil, fmt.Errorf("%w: truncated index entry %q", domain.ErrParse, line)
		}
		name, err := anchorText(strings.TrimSpace(lines[i+1]))
		if err != nil {
			return nil, err
		}
		items = append(items, domain.MailingList{
			Name:        name,
			Description: strings.TrimSpace(lines[i+2]),
			LastUpdate:  lastUpdate,
		})
		i += 2
	}
	return items, nil
}

// anchorText returns the inner text of a line like `href="all/">all</a>`.
func anchorText(line string) (string, error) {
	gt := strings.Index(line, ">")
	if gt < 0 {
		return "", fmt.Errorf("%w: mailing list name in %q", domain.ErrParse, line)
	}
	text := line[gt+1:]
	if end := strings.Index(text, "</a>"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text), nil
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Updated string     `xml:"updated"`
	Author  atomAuthor `xml:"author"`
	Links   []atomLink `xml:"link"`
}

type atomAuthor struct {
	Name  string `xml:"name"`
	Email string `xml:"email"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

// parseFeedPage extracts patch metadata from one Atom page of a list
// feed. Entry order is preserved; the archive serves newest first.
func parseFeedPage(body []byte, list string) ([]domain.PatchMeta, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: feed for %s: %v", domain.ErrParse, list, err)
	}
	items := make([]domain.PatchMeta, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		updated, err := time.Parse(time.RFC3339, e.Updated)
		if err != nil {
			return nil, fmt.Errorf("%w: entry timestamp %q: %v", domain.ErrParse, e.Updated, err)
		}
		messageID, err := messageIDFromLinks(e.Links)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", domain.ErrParse, e.Title, err)
		}
		version, count := parseTitleMarkers(e.Title)
		items = append(items, domain.PatchMeta{
			MessageID:    messageID,
			Title:        e.Title,
			Author:       e.Author.Name,
			Email:        e.Author.Email,
			Version:      version,
			PatchesCount: count,
			LastUpdate:   updated.UTC(),
			List:         list,
		})
	}
	return items, nil
}

// messageIDFromLinks takes the last path segment of the entry's archive
// link, which is the message id.
func messageIDFromLinks(links []atomLink) (string, error) {
	for _, l := range links {
		href := strings.TrimSuffix(l.Href, "/")
		if href == "" {
			continue
		}
		if idx := strings.LastIndex(href, "/"); idx >= 0 {
			return href[idx+1:], nil
		}
	}
	return "", fmt.Errorf("no usable link")
}

var (
	titleTagRe = regexp.MustCompile(`^\s*\[([^\]]*)\]`)
	versionRe  = regexp.MustCompile(`(?i)\bv(\d+)\b`)
	sequenceRe = regexp.MustCompile(`\b\d+/(\d+)\b`)
)

// parseTitleMarkers reads the version and series size from a subject
// tag such as [PATCH v3 2/7]. Absent markers default to 1.
func parseTitleMarkers(title string) (version, count int) {
	version, count = 1, 1
	tag := titleTagRe.FindStringSubmatch(title)
	if tag == nil {
		return version, count
	}
	if m := versionRe.FindStringSubmatch(tag[1]); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
			version = n
		}
	}
	if m := sequenceRe.FindStringSubmatch(tag[1]); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
			count = n
		}
	}
	return version, count
}
