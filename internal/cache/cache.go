// Package cache provides the persistent key-value store used by two
// consumers: internal/detect's Learned family (caching low-confidence
// values against the opaque model oracle, the way the teacher cached
// Ollama lookups) and internal/threshold's feedback-learning store (spec.md
// §5's "the feedback learning store, if enabled, is updated append-only").
//
// Two implementations are provided: memoryCache (tests, no path configured)
// and bboltCache (production, embedded go.etcd.io/bbolt). An S3-FIFO
// in-memory eviction layer (Yang et al., 2023) sits in front of either one
// to bound hot-set size independent of on-disk size.
package cache

import (
	"fmt"
	"log"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// PersistentCache is the generic cross-session key-value store interface.
// Unlike the teacher's original cache interface, Delete is part of the
// contract from the start: the feedback store and the S3-FIFO eviction
// layer both need to remove entries, not just overwrite them.
// All implementations must be safe for concurrent use.
type PersistentCache interface {
	Get(key string) (value string, ok bool)
	Set(key, value string)
	Delete(key string)
	Close() error
}

// --- memoryCache ---------------------------------------------------------

type memoryCache struct {
	mu    sync.RWMutex
	store map[string]string
}

// NewMemoryCache returns a thread-safe in-memory PersistentCache, used in
// tests. cmd/redact does not fall back to it: with no bbolt path configured
// the learned detector runs without a cache.
func NewMemoryCache() PersistentCache {
	return &memoryCache{store: make(map[string]string)}
}

func (c *memoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *memoryCache) Set(key, value string) {
	c.mu.Lock()
	c.store[key] = value
	c.mu.Unlock()
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

func (c *memoryCache) Close() error { return nil }

// --- bboltCache ----------------------------------------------------------

const defaultBucket = "redact_cache"

type bboltCache struct {
	db     *bolt.DB
	bucket string
}

// NewBboltCache opens (or creates) a bbolt database at path, under the
// given bucket name, and ensures the bucket exists.
func NewBboltCache(path, bucket string) (PersistentCache, error) {
	if bucket == "" {
		bucket = defaultBucket
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt cache %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create bbolt bucket %q: %w", bucket, err)
	}
	log.Printf("[CACHE] persistent store opened at %s (bucket %s)", path, bucket)
	return &bboltCache{db: db, bucket: bucket}, nil
}

func (c *bboltCache) Get(key string) (string, bool) {
	var value string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	if err != nil {
		log.Printf("[CACHE] Get error: %v", err)
		return "", false
	}
	return value, value != ""
}

func (c *bboltCache) Set(key, value string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", c.bucket)
		}
		return b.Put([]byte(key), []byte(value))
	}); err != nil {
		log.Printf("[CACHE] Set error: %v", err)
	}
}

func (c *bboltCache) Delete(key string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}); err != nil {
		log.Printf("[CACHE] Delete error: %v", err)
	}
}

func (c *bboltCache) Close() error {
	return c.db.Close()
}
