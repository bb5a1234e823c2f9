package tui

import "github.com/lkml-tools/patch-hub/internal/domain"

// Message types for the TUI

// ErrMsg represents an error surfaced on the error screen
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// ListsLoadedMsg signals that a page of mailing lists has been loaded
type ListsLoadedMsg struct {
	Items []domain.MailingList
	Total int
	Page  int
}

// FeedLoadedMsg signals that a page of a list's feed has been loaded
type FeedLoadedMsg struct {
	List  string
	Items []domain.PatchMeta
	Total int
	Page  int
}

// PatchLoadedMsg signals that a patch body is ready for display
type PatchLoadedMsg struct {
	List      string
	MessageID string
	Body      string
}

// RefreshedMsg signals that a forced refresh completed
type RefreshedMsg struct{}

// InvalidatedMsg signals that the cache backing the failed screen was
// dropped
type InvalidatedMsg struct{}
