package settings

import (
	"context"
	"testing"
	"time"

	"github.com/voxlate/voxlate/pkg/kv"
)

func newTestQuota(t *testing.T, limit time.Duration) *Quota {
	t.Helper()
	store := kv.NewMemory()
	t.Cleanup(func() { store.Close() })
	return NewQuota(store, limit)
}

func TestQuotaRecordAndRemaining(t *testing.T) {
	ctx := context.Background()
	q := newTestQuota(t, 10*time.Minute)

	rem, err := q.Remaining(ctx)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if rem != 10*time.Minute {
		t.Fatalf("Remaining = %v, want %v", rem, 10*time.Minute)
	}

	if err := q.Record(ctx, 3*time.Minute); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := q.Record(ctx, 2*time.Minute); err != nil {
		t.Fatalf("Record: %v", err)
	}

	used, err := q.Used(ctx)
	if err != nil {
		t.Fatalf("Used: %v", err)
	}
	if used != 5*time.Minute {
		t.Fatalf("Used = %v, want %v", used, 5*time.Minute)
	}
	rem, _ = q.Remaining(ctx)
	if rem != 5*time.Minute {
		t.Fatalf("Remaining = %v, want %v", rem, 5*time.Minute)
	}
}

func TestQuotaCapBoundary(t *testing.T) {
	ctx := context.Background()
	q := newTestQuota(t, 10*time.Minute)

	if err := q.Record(ctx, 10*time.Minute-time.Second); err != nil {
		t.Fatalf("Record: %v", err)
	}
	ok, err := q.CanTranslate(ctx)
	if err != nil {
		t.Fatalf("CanTranslate: %v", err)
	}
	if !ok {
		t.Fatal("CanTranslate under the cap = false, want true")
	}

	if err := q.Record(ctx, time.Second); err != nil {
		t.Fatalf("Record: %v", err)
	}
	ok, _ = q.CanTranslate(ctx)
	if ok {
		t.Fatal("CanTranslate at the cap = true, want false")
	}
	rem, _ := q.Remaining(ctx)
	if rem != 0 {
		t.Fatalf("Remaining at the cap = %v, want 0", rem)
	}
}

func TestQuotaResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	q := newTestQuota(t, 10*time.Minute)

	day := time.Date(2026, 8, 30, 23, 50, 0, 0, time.Local)
	q.now = func() time.Time { return day }

	if err := q.Record(ctx, 10*time.Minute); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if ok, _ := q.CanTranslate(ctx); ok {
		t.Fatal("CanTranslate at the cap = true, want false")
	}

	q.now = func() time.Time { return day.Add(20 * time.Minute) }

	used, err := q.Used(ctx)
	if err != nil {
		t.Fatalf("Used: %v", err)
	}
	if used != 0 {
		t.Fatalf("Used after midnight = %v, want 0", used)
	}
	if ok, _ := q.CanTranslate(ctx); !ok {
		t.Fatal("CanTranslate after midnight = false, want true")
	}
}

func TestQuotaUnlimited(t *testing.T) {
	ctx := context.Background()
	q := newTestQuota(t, 0)

	if err := q.Record(ctx, 24*time.Hour); err != nil {
		t.Fatalf("Record: %v", err)
	}
	rem, err := q.Remaining(ctx)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if rem != -1 {
		t.Fatalf("Remaining = %v, want -1 (unlimited)", rem)
	}
	if ok, _ := q.CanTranslate(ctx); !ok {
		t.Fatal("CanTranslate with no cap = false, want true")
	}
}
