package cache

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a should survive, got %d %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute)
	c.now = clk.now

	c.Set("a", "x")
	c.Set("b", "y")
	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", "z")
	clk.t = clk.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("a should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Fatalf("b was refreshed and must not expire yet, cleaned %d", n)
	}
	clk.t = clk.t.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 || c.Size() != 0 {
		t.Fatalf("expected one expired entry, cleaned %d size %d", n, c.Size())
	}
}

func TestLRUDeleteAndPurge(t *testing.T) {
	c := NewLRUCache[int](0, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	if c.Size() != 1 {
		t.Fatalf("size below 1 is treated as 1, got %d", c.Size())
	}
	c.Delete("b")
	c.Set("c", 3)
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("purge must empty the cache")
	}
}

type countingCleaner struct{ calls chan struct{} }

func (c countingCleaner) CleanExpired() int {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return 1
}

func TestManagerRunsAndStops(t *testing.T) {
	m := NewManager()
	cleaner := countingCleaner{calls: make(chan struct{}, 1)}
	m.Register(cleaner)

	if got := m.CleanNow(); got != 1 {
		t.Fatalf("CleanNow = %d, want 1", got)
	}
	<-cleaner.calls

	m.StartCleanup(context.Background(), time.Millisecond)
	m.StartCleanup(context.Background(), time.Millisecond)
	select {
	case <-cleaner.calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("cleanup loop never ran")
	}
	m.Stop()
	m.Stop()
}
