package keyring

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucketPrefix = "keyring/"

// BoltStore keeps entries in a bbolt file shared by every process on the host
// (or on a shared volume). The file is opened for each operation only, so
// processes take turns on bbolt's file lock instead of one holding it for its
// whole lifetime.
type BoltStore struct {
	path        string
	lockTimeout time.Duration
}

// NewBoltStore prepares a store at path. lockTimeout bounds how long an
// operation waits for another process to release the file.
func NewBoltStore(path string, lockTimeout time.Duration) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create key ring directory %s: %w", dir, err)
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}

	return &BoltStore{path: path, lockTimeout: lockTimeout}, nil
}

func (s *BoltStore) open() (*bbolt.DB, error) {
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: s.lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", s.path, err)
	}

	return db, nil
}

func (s *BoltStore) Load(_ context.Context, ring string) ([]Entry, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var out []Entry
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucketPrefix + ring))
		if b == nil {
			return nil
		}

		// Keys are big-endian generations, so cursor order is generation order.
		return b.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode key ring entry: %w", err)
			}
			out = append(out, e)
			return nil
		})
	})

	return out, err
}

func (s *BoltStore) CreateIfAbsent(_ context.Context, ring string, e Entry) (Entry, bool, error) {
	db, err := s.open()
	if err != nil {
		return Entry{}, false, err
	}
	defer db.Close()

	stored, created := e, false
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(boltBucketPrefix + ring))
		if err != nil {
			return fmt.Errorf("failed to create bucket for ring %s: %w", ring, err)
		}

		key := generationKey(e.Generation)
		if existing := b.Get(key); existing != nil {
			return json.Unmarshal(existing, &stored)
		}

		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode key ring entry: %w", err)
		}
		created = true

		return b.Put(key, value)
	})
	if err != nil {
		return Entry{}, false, err
	}

	return stored, created, nil
}

func (s *BoltStore) DeleteExpired(_ context.Context, ring string, now time.Time) (int, error) {
	db, err := s.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	n := 0
	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucketPrefix + ring))
		if b == nil {
			return nil
		}

		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})

	return n, err
}

func generationKey(gen int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(gen))

	return k
}

var _ Store = (*BoltStore)(nil)
