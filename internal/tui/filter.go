package tui

import (
	fuzzysearch "github.com/lithammer/fuzzysearch/fuzzy"
	sahilm "github.com/sahilm/fuzzy"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

type listSource []domain.MailingList

func (s listSource) String(i int) string { return s[i].Name }
func (s listSource) Len() int            { return len(s) }

// filterLists narrows items to fuzzy matches of query. Name matches
// come first in ranked order; description-only matches follow in their
// original order.
func filterLists(query string, items []domain.MailingList) []domain.MailingList {
	if query == "" {
		return items
	}

	candidates := make(listSource, 0, len(items))
	for _, item := range items {
		if fuzzysearch.MatchNormalizedFold(query, item.Name) ||
			fuzzysearch.MatchNormalizedFold(query, item.Description) {
			candidates = append(candidates, item)
		}
	}

	matches := sahilm.FindFrom(query, candidates)
	out := make([]domain.MailingList, 0, len(candidates))
	ranked := make(map[int]bool, len(matches))
	for _, m := range matches {
		ranked[m.Index] = true
		out = append(out, candidates[m.Index])
	}
	for i, item := range candidates {
		if !ranked[i] {
			out = append(out, item)
		}
	}
	return out
}
