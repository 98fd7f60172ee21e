package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
)

const (
	dataKeyPrefix = "artifact:"
	typeKeyPrefix = "artifact_type:"
)

// BadgerStore keeps artifacts in a BadgerDB instance.
type BadgerStore struct {
	db      *badger.DB
	baseURL string
}

// OpenBadger opens (or creates) a BadgerDB directory. An empty dir opens an in-memory instance.
func OpenBadger(dir, baseURL string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return NewBadgerStore(db, baseURL), nil
}

// NewBadgerStore wraps an open database. The caller keeps ownership of db unless Close is called.
func NewBadgerStore(db *badger.DB, baseURL string) *BadgerStore {
	return &BadgerStore{db: db, baseURL: baseURL}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Put stores body and its content type under key in one transaction.
func (s *BadgerStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(readerWithContext(ctx, body))
	if err != nil {
		return 0, fmt.Errorf("read artifact body: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(dataKeyPrefix + key))
		if err == nil {
			return ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check artifact: %w", err)
		}
		if err := txn.Set([]byte(dataKeyPrefix+key), data); err != nil {
			return fmt.Errorf("set artifact: %w", err)
		}
		return txn.Set([]byte(typeKeyPrefix+key), []byte(contentType))
	})
	switch {
	case errors.Is(err, badger.ErrConflict):
		// A concurrent writer committed the same key first.
		return 0, ErrExists
	case err != nil:
		return 0, err
	}
	return int64(len(data)), nil
}

// Open returns a copy of the stored bytes and their content type.
func (s *BadgerStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := ValidateKey(key); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	var data []byte
	var contentType string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get artifact: %w", err)
		}
		if data, err = item.ValueCopy(nil); err != nil {
			return fmt.Errorf("read artifact: %w", err)
		}
		if ti, err := txn.Get([]byte(typeKeyPrefix + key)); err == nil {
			v, err := ti.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read artifact type: %w", err)
			}
			contentType = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return io.NopCloser(bytes.NewReader(data)), contentType, nil
}

// Exists reports whether key is stored.
func (s *BadgerStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(dataKeyPrefix + key))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check artifact: %w", err)
	}
}

// Delete removes key and its content type.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataKeyPrefix + key)); err != nil {
			return fmt.Errorf("delete artifact: %w", err)
		}
		return txn.Delete([]byte(typeKeyPrefix + key))
	})
}

// URL joins key onto the public base URL.
func (s *BadgerStore) URL(key string) string {
	return joinURL(s.baseURL, key)
}
