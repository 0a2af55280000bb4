package cache

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var headerBucket = []byte("headers")

// BoltHeaderStore is the default HeaderStore backend: a single bbolt file
// with one bucket, keyed by UIDL. bbolt gives durable single-writer storage
// without a server process, the same reason the rest of the pack reaches
// for it as a mail server's local index store.
type BoltHeaderStore struct {
	db *bolt.DB
}

// OpenBoltHeaderStore opens (creating if necessary) a bbolt-backed header
// cache at path.
func OpenBoltHeaderStore(path string) (*BoltHeaderStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: open header store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(headerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init header store: %w", err)
	}
	return &BoltHeaderStore{db: db}, nil
}

func (s *BoltHeaderStore) Fetch(uidl string) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(headerBucket).Get([]byte(uidl))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

func (s *BoltHeaderStore) Store(uidl string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(headerBucket).Put([]byte(uidl), data)
	})
}

func (s *BoltHeaderStore) Delete(uidl string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(headerBucket).Delete([]byte(uidl))
	})
}

func (s *BoltHeaderStore) List(visit func(uidl string) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(headerBucket).ForEach(func(k, _ []byte) error {
			return visit(string(k))
		})
	})
}

func (s *BoltHeaderStore) Close() error {
	return s.db.Close()
}
