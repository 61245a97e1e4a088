// Package cache stores raw provider responses in an embedded BadgerDB.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"scout-alerts/internal/repository"
)

const keyPrefix = "cache:"

// BadgerCache implements repository.CacheRepository on BadgerDB.
// Keys are "cache:<subscription type>:<function>:<url>" so that Clear can
// drop a whole provider with one prefix.
type BadgerCache struct {
	db *badger.DB
}

var _ repository.CacheRepository = (*BadgerCache)(nil)

// NewBadgerCache wraps an open database.
func NewBadgerCache(db *badger.DB) *BadgerCache {
	return &BadgerCache{db: db}
}

// Open opens (or creates) a cache database at dir. An empty dir opens an
// in-memory database.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

func typePrefix(subscriptionType string) []byte {
	return []byte(keyPrefix + subscriptionType + ":")
}

func cacheKey(url, function, subscriptionType string) []byte {
	return []byte(keyPrefix + subscriptionType + ":" + function + ":" + url)
}

// Get returns the cached body, if any.
func (c *BadgerCache) Get(_ context.Context, url, function, subscriptionType string) (string, bool, error) {
	var content string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(url, function, subscriptionType))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			content = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cache: %w", err)
	}
	return content, true, nil
}

// Put stores content, replacing any previous entry.
func (c *BadgerCache) Put(_ context.Context, url, function, subscriptionType, content string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(url, function, subscriptionType), []byte(content))
	})
	if err != nil {
		return fmt.Errorf("set cache: %w", err)
	}
	return nil
}

// Clear removes every entry of one subscription type and returns how many were dropped.
func (c *BadgerCache) Clear(_ context.Context, subscriptionType string) (int64, error) {
	prefix := typePrefix(subscriptionType)

	var n int64
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count cache: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	if err := c.db.DropPrefix(prefix); err != nil {
		return 0, fmt.Errorf("drop cache prefix: %w", err)
	}
	return n, nil
}
