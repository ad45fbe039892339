// Package history persists completed translation turns. Entries live in the
// key-value store under a "history" prefix, msgpack-encoded, with a bounded
// log: once the cap is reached the oldest entries are evicted.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxlate/voxlate/pkg/kv"
)

// DefaultLimit is the number of entries kept before eviction.
const DefaultLimit = 100

// Entry is one completed translation turn.
type Entry struct {
	ID         string    `msgpack:"id"`
	Timestamp  time.Time `msgpack:"ts"`
	Original   string    `msgpack:"orig"`
	Translated string    `msgpack:"trans"`
	Source     string    `msgpack:"src"`
	Target     string    `msgpack:"tgt"`
}

// Log is a bounded, append-only translation history over a kv.Store.
type Log struct {
	store kv.Store
	limit int
}

// Option configures a Log.
type Option func(*Log)

// WithLimit overrides the entry cap. Values below 1 are ignored.
func WithLimit(n int) Option {
	return func(l *Log) {
		if n >= 1 {
			l.limit = n
		}
	}
}

// New creates a history log over the given store.
func New(store kv.Store, opts ...Option) *Log {
	l := &Log{store: store, limit: DefaultLimit}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// seqKey yields keys whose lexicographic order matches insertion order.
func seqKey(ts time.Time, id string) kv.Key {
	return kv.Key{"history", fmt.Sprintf("%020d_%s", ts.UnixNano(), id)}
}

// Append stores a completed turn, assigning an ID and timestamp if unset,
// then evicts the oldest entries past the cap.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := msgpack.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("history: encode entry: %w", err)
	}
	if err := l.store.Set(ctx, seqKey(e.Timestamp, e.ID), data); err != nil {
		return Entry{}, fmt.Errorf("history: store entry: %w", err)
	}
	if err := l.evict(ctx); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Entries returns all stored turns, oldest first.
func (l *Log) Entries(ctx context.Context) ([]Entry, error) {
	var out []Entry
	for item, err := range l.store.List(ctx, kv.Key{"history"}) {
		if err != nil {
			return nil, fmt.Errorf("history: list entries: %w", err)
		}
		var e Entry
		if err := msgpack.Unmarshal(item.Value, &e); err != nil {
			return nil, fmt.Errorf("history: decode entry %s: %w", item.Key, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Clear removes all stored turns.
func (l *Log) Clear(ctx context.Context) error {
	var keys []kv.Key
	for item, err := range l.store.List(ctx, kv.Key{"history"}) {
		if err != nil {
			return fmt.Errorf("history: list entries: %w", err)
		}
		keys = append(keys, item.Key)
	}
	for _, k := range keys {
		if err := l.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("history: delete %s: %w", k, err)
		}
	}
	return nil
}

func (l *Log) evict(ctx context.Context) error {
	var keys []kv.Key
	for item, err := range l.store.List(ctx, kv.Key{"history"}) {
		if err != nil {
			return fmt.Errorf("history: list entries: %w", err)
		}
		keys = append(keys, item.Key)
	}
	for _, k := range keys[:max(0, len(keys)-l.limit)] {
		if err := l.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("history: evict %s: %w", k, err)
		}
	}
	return nil
}
