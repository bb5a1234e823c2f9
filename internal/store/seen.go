// Package store tracks which patches the user has already viewed. It
// is backed by BoltDB with an in-memory promote cache for hot reads.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSeen = []byte("seen")

// SeenStore records first-view timestamps per patch. An empty data
// directory yields a memory-only store with no persistence.
type SeenStore struct {
	db *bolt.DB
	mu sync.RWMutex

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string]string
}

// NewSeenStore opens (or creates) the seen database under dataDir.
func NewSeenStore(dataDir string) (*SeenStore, error) {
	if dataDir == "" {
		return &SeenStore{cache: make(map[string]string)}, nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "seen.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSeen)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SeenStore{db: db, cache: make(map[string]string)}, nil
}

func seenKey(list, messageID string) string {
	return list + "/" + messageID
}

// MarkSeen records the first view of a patch. Marking again keeps the
// original timestamp.
func (s *SeenStore) MarkSeen(list, messageID string) error {
	key := seenKey(list, messageID)
	if s.IsSeen(list, messageID) {
		return nil
	}
	stamp := time.Now().UTC().Format(time.RFC3339)

	s.mu.Lock()
	s.cache[key] = stamp
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSeen).Put([]byte(key), []byte(stamp))
	})
}

// IsSeen reports whether the patch was viewed before.
func (s *SeenStore) IsSeen(list, messageID string) bool {
	key := seenKey(list, messageID)

	s.mu.RLock()
	_, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return true
	}

	if s.db == nil {
		return false
	}

	var stamp string
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSeen).Get([]byte(key)); v != nil {
			stamp = string(v)
		}
		return nil
	})
	if stamp == "" {
		return false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[key] = stamp
	s.mu.Unlock()
	return true
}

// SeenCount returns how many patches of list were viewed.
func (s *SeenStore) SeenCount(list string) (int, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		n := 0
		for k := range s.cache {
			if strings.HasPrefix(k, list+"/") {
				n++
			}
		}
		return n, nil
	}

	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSeen).Cursor()
		prefix := []byte(list + "/")
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// InvalidateAll forgets every recorded view.
func (s *SeenStore) InvalidateAll() error {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSeen); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSeen)
		return err
	})
}

func (s *SeenStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
