// Package boltdb provides a storage adapter backed by a BoltDB database.
package boltdb

import (
	"bytes"
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
)

// bucketName is the single bucket that holds all agentdb records. The key
// scheme ("state/", "mem/", "vec/", "snapshot/") keeps the namespaces apart.
var bucketName = []byte("agentdb")

// BoltStore implements the storage.Store and storage.Scanner interfaces
// using a BoltDB database.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltStore with the given database connection.
func NewBoltStore(db *bolt.DB) *BoltStore {
	store := &BoltStore{
		db: db,
	}

	log.Debug("Initialized BoltDB storage adapter",
		"db_path", db.Path(),
		"read_only", db.IsReadOnly(),
	)

	return store
}

// Open opens (or creates) a BoltDB database at path and wraps it in a
// BoltStore.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrIO, "failed to open bolt database %s: %v", path, err)
	}
	return NewBoltStore(db), nil
}

// Initialize creates the bucket if it doesn't exist. It is called lazily by
// Put, but can be called explicitly at startup.
func (b *BoltStore) Initialize(ctx context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize bolt bucket", "error", err)
		return errors.Wrap(errors.ErrIO, "failed to create bucket: %v", err)
	}
	return nil
}

// Put implements the storage.Store interface.
func (b *BoltStore) Put(ctx context.Context, key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return bucket.Put(key, value)
	})
	if err != nil {
		return errors.Wrap(errors.ErrIO, "failed to put %q: %v", key, err)
	}
	return nil
}

// Get implements the storage.Store interface.
func (b *BoltStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(key); v != nil {
			// Bolt values are only valid inside the transaction
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrIO, "failed to get %q: %v", key, err)
	}
	return value, nil
}

// Delete implements the storage.Store interface.
func (b *BoltStore) Delete(ctx context.Context, key []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(key)
	})
	if err != nil {
		return errors.Wrap(errors.ErrIO, "failed to delete %q: %v", key, err)
	}
	return nil
}

// ScanPrefix implements the storage.Scanner interface using a bolt cursor
// seek, so only keys under the prefix are visited.
func (b *BoltStore) ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
