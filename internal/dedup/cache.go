package dedup

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var seenBucket = []byte("seen_url_hashes")

// SeenCache is a local record of url hashes known to be ingested. A nil
// *SeenCache is valid and remembers nothing.
type SeenCache struct {
	db *bolt.DB
}

// OpenSeenCache opens (or creates) the bbolt file at path.
func OpenSeenCache(path string) (*SeenCache, error) {
	if path == "" {
		return nil, errors.New("seen cache path is empty")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open seen cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(seenBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init seen cache: %w", err)
	}
	return &SeenCache{db: db}, nil
}

// Has reports whether hash has been marked.
func (c *SeenCache) Has(hash string) (bool, error) {
	if c == nil || c.db == nil {
		return false, nil
	}
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(seenBucket).Get([]byte(hash)) != nil
		return nil
	})
	return found, err
}

// Mark records hash with the current time.
func (c *SeenCache) Mark(hash string) error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(seenBucket).Put([]byte(hash), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// Len returns the number of marked hashes.
func (c *SeenCache) Len() (int, error) {
	if c == nil || c.db == nil {
		return 0, nil
	}
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(seenBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Close releases the underlying file.
func (c *SeenCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
