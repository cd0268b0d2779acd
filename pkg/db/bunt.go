package db

import (
	"errors"
	"fmt"

	"github.com/tidwall/buntdb"
)

// InMemory is the path that opens a non-durable database.
const InMemory = ":memory:"

var _ DB = (*BuntDB)(nil)

// BuntDB defines a key/value store using an embedded B-tree based database.
// It is either in-memory or backed by an append-only file.
type BuntDB struct {
	db *buntdb.DB
}

// NewMemDB opens an in-memory non-durable database.
func NewMemDB() (*BuntDB, error) {
	return Open(InMemory)
}

// Open opens the database at path, creating it if needed.
func Open(path string) (*BuntDB, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	return &BuntDB{db: db}, nil
}

func (db *BuntDB) Set(key, val []byte) error {
	err := db.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(string(key), string(val), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

func (db *BuntDB) Get(key []byte) ([]byte, error) {
	var result string

	err := db.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(string(key))
		if err != nil {
			return err
		}

		result = val
		return nil
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	return []byte(result), nil
}

func (db *BuntDB) Count() (int, error) {
	var n int

	err := db.db.View(func(tx *buntdb.Tx) error {
		var err error
		n, err = tx.Len()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}

	return n, nil
}

func (db *BuntDB) Iterate(fn func(key, val []byte) bool) error {
	err := db.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, val string) bool {
			return fn([]byte(key), []byte(val))
		})
	})
	if err != nil {
		return fmt.Errorf("failed to iterate keys: %w", err)
	}

	return nil
}

func (db *BuntDB) Close() error {
	return db.db.Close()
}
