package store

import (
	"encoding/json"
	"fmt"

	"chatrelay/pkg/logger"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB

var dbPath string

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = pebble.ErrNotFound

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// setJSON marshals v and writes it under key with a synced write.
func setJSON(key string, v any) error {
	if db == nil {
		return notOpened()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := db.Set([]byte(key), b, pebble.Sync); err != nil {
		logger.Error("save_key_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// getJSON reads key and unmarshals the value into out. Returns
// ErrNotFound when the key does not exist.
func getJSON(key string, out any) error {
	if db == nil {
		return notOpened()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	return json.Unmarshal(v, out)
}

// GetRaw returns the raw stored bytes for a key. Used by the inspect tool.
func GetRaw(key string) ([]byte, error) {
	if db == nil {
		return nil, notOpened()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

// SaveKey writes raw bytes under a key with a synced write.
func SaveKey(key string, val []byte) error {
	if db == nil {
		return notOpened()
	}
	return db.Set([]byte(key), val, pebble.Sync)
}

// GetKey returns the raw value for a key as a string, or "" when the key
// does not exist.
func GetKey(key string) (string, error) {
	b, err := GetRaw(key)
	if err != nil {
		if err == ErrNotFound {
			return "", nil
		}
		return "", err
	}
	return string(b), nil
}

// DeleteKey removes an arbitrary key.
func DeleteKey(key string) error {
	return deleteKey(key)
}

func deleteKey(key string) error {
	if db == nil {
		return notOpened()
	}
	return db.Delete([]byte(key), pebble.Sync)
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for use as an iterator upper bound.
func prefixUpperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}

// prefixIter returns a bounded iterator over all keys with the prefix.
// Caller must close the iterator when done.
func prefixIter(prefix []byte) (*pebble.Iterator, error) {
	if db == nil {
		return nil, notOpened()
	}
	return db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, notOpened()
	}
	var iter *pebble.Iterator
	var err error
	if prefix == "" {
		iter, err = db.NewIter(&pebble.IterOptions{})
	} else {
		iter, err = prefixIter([]byte(prefix))
	}
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		out = append(out, string(k))
	}
	return out, iter.Error()
}
