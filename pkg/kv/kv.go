// Package kv provides a small key-value store with hierarchical path keys,
// backed by BadgerDB for persistence or by memory for tests. History entries
// and usage counters persist through it.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path, e.g. Key{"history", "000042"}. Segments must
// not contain the ':' separator.
type Key []string

func (k Key) String() string { return strings.Join(k, ":") }

// encode converts a Key to its stored byte representation.
func (k Key) encode() []byte { return []byte(k.String()) }

// decodeKey splits a stored key back into segments.
func decodeKey(b []byte) Key { return Key(strings.Split(string(b), ":")) }

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the key-value store interface.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if it does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates entries whose key starts with prefix, in lexicographic
	// order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases store resources.
	Close() error
}

// prefixBytes returns the encoded prefix including the trailing separator so
// "history" does not match "history2".
func prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return []byte(prefix.String() + ":")
}
