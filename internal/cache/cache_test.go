package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(mr.Addr(), ttl)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestPutGetRoundtrip(t *testing.T) {
	c, _ := testCache(t, time.Hour)
	ctx := context.Background()
	c.Put(ctx, "Get my contacts", "https://acme.example", "3 contacts found")

	got, ok := c.Get(ctx, "Get my contacts", "https://acme.example")
	if !ok || got != "3 contacts found" {
		t.Fatalf("get %q %v", got, ok)
	}

	// Keys normalize case and surrounding whitespace.
	got, ok = c.Get(ctx, "  get my contacts ", "https://acme.example")
	if !ok || got != "3 contacts found" {
		t.Fatalf("normalized get %q %v", got, ok)
	}
}

func TestMissOnDifferentInstance(t *testing.T) {
	c, _ := testCache(t, time.Hour)
	ctx := context.Background()
	c.Put(ctx, "query", "https://a.example", "answer")
	if _, ok := c.Get(ctx, "query", "https://b.example"); ok {
		t.Fatal("instances must not share entries")
	}
}

func TestEntryExpires(t *testing.T) {
	c, mr := testCache(t, time.Minute)
	ctx := context.Background()
	c.Put(ctx, "query", "https://acme.example", "answer")
	mr.FastForward(2 * time.Minute)
	if _, ok := c.Get(ctx, "query", "https://acme.example"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestClear(t *testing.T) {
	c, _ := testCache(t, time.Hour)
	ctx := context.Background()
	c.Put(ctx, "one", "https://acme.example", "1")
	c.Put(ctx, "two", "https://acme.example", "2")
	if n := c.Clear(ctx); n != 2 {
		t.Fatalf("cleared %d", n)
	}
	if _, ok := c.Get(ctx, "one", "https://acme.example"); ok {
		t.Fatal("entry survived clear")
	}
}

func TestStats(t *testing.T) {
	c, _ := testCache(t, time.Hour)
	ctx := context.Background()
	enabled, keys := c.Stats(ctx)
	if !enabled || keys != 0 {
		t.Fatalf("stats %v %d", enabled, keys)
	}
	c.Put(ctx, "query", "https://acme.example", "answer")
	if _, keys = c.Stats(ctx); keys != 1 {
		t.Fatalf("keys %d", keys)
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	if _, ok := c.Get(ctx, "q", "i"); ok {
		t.Fatal("nil cache must miss")
	}
	c.Put(ctx, "q", "i", "r")
	if n := c.Clear(ctx); n != 0 {
		t.Fatalf("cleared %d", n)
	}
	if enabled, _ := c.Stats(ctx); enabled {
		t.Fatal("nil cache must report disabled")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestUnreachableRedis(t *testing.T) {
	if _, err := New("127.0.0.1:1", time.Hour); err == nil {
		t.Fatal("expected connection error")
	}
}
