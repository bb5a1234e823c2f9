package domain

import "time"

// PageSize is the number of items in one page of any ordered collection
// (mailing lists, patch feeds). The UI and the caches agree on this value
// for slicing.
const PageSize = 20

// MailingList is a single mailing list archived on the upstream server.
// Identity is the Name field.
type MailingList struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	LastUpdate  time.Time `json:"last_update"`
}

// PatchMeta is the metadata of one patch series as it appears in a list
// feed. Identity within a list is MessageID. Feeds are ordered newest
// first; the head item's LastUpdate is the freshness token of the feed.
type PatchMeta struct {
	MessageID    string    `json:"message_id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Email        string    `json:"email"`
	Version      int       `json:"version"`
	PatchesCount int       `json:"patches_count"`
	LastUpdate   time.Time `json:"last_update"`
	List         string    `json:"list"`
}

// ListsFile is the serialised form of the mailing list snapshot on disk.
type ListsFile struct {
	HeadLastUpdate time.Time     `json:"head_last_update"`
	Items          []MailingList `json:"items"`
}

// FeedFile is the per-list serialised feed snapshot on disk.
type FeedFile struct {
	HeadLastUpdate time.Time   `json:"head_last_update"`
	Items          []PatchMeta `json:"items"`
}
