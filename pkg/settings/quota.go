package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/voxlate/voxlate/pkg/kv"
)

// Quota tracks streamed audio against a per-calendar-day cap. Usage is keyed
// by local date, so the counter resets naturally at midnight.
type Quota struct {
	store kv.Store
	limit time.Duration
	now   func() time.Time
}

// NewQuota creates a quota over the given store. A zero limit disables the
// cap entirely.
func NewQuota(store kv.Store, limit time.Duration) *Quota {
	return &Quota{store: store, limit: limit, now: time.Now}
}

func (q *Quota) dayKey() kv.Key {
	return kv.Key{"usage", q.now().Format("2006-01-02")}
}

// Used returns the audio duration streamed today.
func (q *Quota) Used(ctx context.Context) (time.Duration, error) {
	data, err := q.store.Get(ctx, q.dayKey())
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("settings: read usage: %w", err)
	}
	ns, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("settings: parse usage %q: %w", data, err)
	}
	return time.Duration(ns), nil
}

// Record adds streamed audio to today's counter.
func (q *Quota) Record(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	used, err := q.Used(ctx)
	if err != nil {
		return err
	}
	used += d
	return q.store.Set(ctx, q.dayKey(), []byte(strconv.FormatInt(int64(used), 10)))
}

// Remaining returns how much streaming time is left today, or -1 if the cap
// is disabled.
func (q *Quota) Remaining(ctx context.Context) (time.Duration, error) {
	if q.limit <= 0 {
		return -1, nil
	}
	used, err := q.Used(ctx)
	if err != nil {
		return 0, err
	}
	if used >= q.limit {
		return 0, nil
	}
	return q.limit - used, nil
}

// CanTranslate reports whether today's counter is still under the cap.
func (q *Quota) CanTranslate(ctx context.Context) (bool, error) {
	rem, err := q.Remaining(ctx)
	if err != nil {
		return false, err
	}
	return rem != 0, nil
}
