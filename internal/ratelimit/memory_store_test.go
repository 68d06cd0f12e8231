package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock はテスト用の手動で進める時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(0)
	s.now = clock.Now
	return s, clock
}

func TestMemoryStore_AllowsUpToLimit(t *testing.T) {
	s, _ := newTestMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := s.Hit(ctx, "k", 5, time.Hour)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	res, err := s.Hit(ctx, "k", 5, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("6th request: expected denied")
	}
	if res.RetryAfter != 3600 {
		t.Errorf("RetryAfter = %d, want 3600", res.RetryAfter)
	}
}

func TestMemoryStore_RetryAfterRoundsUp(t *testing.T) {
	s, clock := newTestMemoryStore()
	ctx := context.Background()

	s.Hit(ctx, "k", 1, time.Minute)
	clock.Advance(59*time.Second + 500*time.Millisecond)

	res, _ := s.Hit(ctx, "k", 1, time.Minute)
	if res.Allowed {
		t.Fatal("expected denied")
	}
	if res.RetryAfter != 1 {
		t.Errorf("RetryAfter = %d, want 1", res.RetryAfter)
	}
}

func TestMemoryStore_ResetsAfterWindow(t *testing.T) {
	s, clock := newTestMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Hit(ctx, "k", 5, time.Hour)
	}
	if res, _ := s.Hit(ctx, "k", 5, time.Hour); res.Allowed {
		t.Fatal("expected denied before window expiry")
	}

	// ちょうど終了時刻ではまだ同じウィンドウ
	clock.Advance(time.Hour)
	if res, _ := s.Hit(ctx, "k", 5, time.Hour); res.Allowed {
		t.Fatal("expected denied at exactly resetAt")
	}

	clock.Advance(time.Millisecond)
	for i := 0; i < 5; i++ {
		res, _ := s.Hit(ctx, "k", 5, time.Hour)
		if !res.Allowed {
			t.Fatalf("request %d in fresh window: expected allowed", i+1)
		}
	}
	if res, _ := s.Hit(ctx, "k", 5, time.Hour); res.Allowed {
		t.Fatal("expected fresh window to enforce the limit again")
	}
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	s, _ := newTestMemoryStore()
	ctx := context.Background()

	s.Hit(ctx, Key(ScopeSubmit, "a"), 1, time.Hour)
	if res, _ := s.Hit(ctx, Key(ScopeSubmit, "a"), 1, time.Hour); res.Allowed {
		t.Fatal("expected submit scope exhausted")
	}
	if res, _ := s.Hit(ctx, Key(ScopePublicRead, "a"), 1, time.Hour); !res.Allowed {
		t.Error("expected public_read scope unaffected")
	}
	if res, _ := s.Hit(ctx, Key(ScopeSubmit, "b"), 1, time.Hour); !res.Allowed {
		t.Error("expected other identity unaffected")
	}
}

func TestMemoryStore_ConcurrentHitsNeverExceedLimit(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Hit(ctx, "race", 10, time.Hour)
			if err == nil && res.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d, want 10", allowed)
	}
}

func TestMemoryStore_CleanupRemovesExpired(t *testing.T) {
	s, clock := newTestMemoryStore()
	ctx := context.Background()

	s.Hit(ctx, "old", 5, time.Minute)
	clock.Advance(30 * time.Second)
	s.Hit(ctx, "new", 5, time.Minute)
	clock.Advance(31 * time.Second)

	s.cleanup()

	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestMemoryStore_StopIsIdempotent(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	s.Stop()
	s.Stop()
}
