// Package bolt implements db.Store on an embedded bbolt file for single-host
// runs that have no Redis available.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kailas-cloud/nqdecode/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

var bucket = []byte("kv")

// headerSize prefixes every value with its expiry in unix nanoseconds (0 = none).
const headerSize = 8

// Config holds the database file location.
type Config struct {
	Path    string
	Timeout time.Duration
}

// Store keeps keys in a single bucket of a bbolt file.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// NewStore opens (or creates) the database file.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}

	bdb, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: bdb, now: time.Now}, nil
}

// Ping verifies the file is open and readable.
func (s *Store) Ping(_ context.Context) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucket) == nil {
			return fmt.Errorf("bucket %s missing", bucket)
		}
		return nil
	})
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close closes the database file.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady returns once Ping succeeds. The file is ready as soon as it is open.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// Get retrieves a live value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil || s.expired(v) {
			return db.ErrKeyNotFound
		}
		out = append([]byte(nil), v[headerSize:]...)
		return nil
	})
	if err == db.ErrKeyNotFound {
		return nil, err
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return out, nil
}

// Set stores a value without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	return s.put(key, value, 0)
}

// SetWithTTL stores a value that reads as missing once ttl has passed.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.put(key, value, s.now().Add(ttl).UnixNano())
}

func (s *Store) put(key string, value []byte, expiresAt int64) error {
	buf := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expiresAt))
	copy(buf[headerSize:], value)

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), buf)
	})
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// Del deletes a key. Missing keys are not an error.
func (s *Store) Del(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
	if err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists reports whether a live value is stored at key.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		found = v != nil && !s.expired(v)
		return nil
	})
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return found, nil
}

// Scan returns live keys matching a glob pattern. The literal prefix before the
// first wildcard is used to seek the cursor.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := []byte(literalPrefix(pattern))
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if s.expired(v) {
				continue
			}
			ok, err := path.Match(pattern, string(k))
			if err != nil {
				return err
			}
			if ok {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	return keys, nil
}

func (s *Store) expired(v []byte) bool {
	if len(v) < headerSize {
		return true
	}
	at := int64(binary.BigEndian.Uint64(v))
	return at != 0 && s.now().UnixNano() >= at
}

func literalPrefix(pattern string) string {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '\\':
			return pattern[:i]
		}
	}
	return pattern
}
