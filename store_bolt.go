package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const docBucket = "docs"

// boltBackend keeps one JSON document per key in a single bucket.
type boltBackend struct {
	db *bbolt.DB
}

func openBoltBackend(path string) (*boltBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(docBucket)); err != nil {
			return fmt.Errorf("create %s bucket: %w", docBucket, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &boltBackend{db: db}, nil
}

func (b *boltBackend) Load(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make(map[string][]byte)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(docBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", docBucket)
		}
		return bucket.ForEach(func(k, v []byte) error {
			// Slices returned by bbolt are only valid inside the transaction.
			docs[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

func (b *boltBackend) Commit(ctx context.Context, docs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(docBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", docBucket)
		}
		for key, payload := range docs {
			var err error
			if payload == nil {
				err = bucket.Delete([]byte(key))
			} else {
				err = bucket.Put([]byte(key), payload)
			}
			if err != nil {
				return fmt.Errorf("writing %s: %w", key, err)
			}
		}
		return nil
	})
}

func (b *boltBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
