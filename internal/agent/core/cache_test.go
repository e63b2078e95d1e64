package core

import (
	"testing"
	"time"
)

func TestCacheKeyIsolation(t *testing.T) {
	base := CacheKey("what is grace", 1, 10, 3, "text-analysis")

	if CacheKey("what is grace", 1, 10, 3, "text-analysis") != base {
		t.Error("identical inputs must produce identical keys")
	}
	if CacheKey("what is grace", 2, 10, 3, "text-analysis") == base {
		t.Error("different users must not share a key")
	}
	if CacheKey("what is grace", 1, 11, 3, "text-analysis") == base {
		t.Error("different documents must not share a key")
	}
	if CacheKey("what is grace", 1, 10, 4, "text-analysis") == base {
		t.Error("different chapters must not share a key")
	}
	if CacheKey("what is grace", 1, 10, 3, "insights") == base {
		t.Error("different agents must not share a key")
	}
}

func TestCacheGetPutAndExpiry(t *testing.T) {
	c := NewResponseCache(50 * time.Millisecond)
	key := CacheKey("q", 1, 1, 1, "")

	if _, ok := c.Get(key); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Put(key, QueryResponse{Answer: "hello", Confidence: 0.9})
	got, ok := c.Get(key)
	if !ok || got.Answer != "hello" {
		t.Fatalf("expected cached answer, got ok=%v resp=%+v", ok, got)
	}

	time.Sleep(70 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("expected entry to expire")
	}
	// Lazy eviction removed the entry on the failed lookup.
	if c.Size() != 0 {
		t.Errorf("size = %d after expired lookup, want 0", c.Size())
	}
}

func TestCachePurge(t *testing.T) {
	c := NewResponseCache(10 * time.Millisecond)
	c.Put("a", QueryResponse{})
	c.Put("b", QueryResponse{})
	time.Sleep(30 * time.Millisecond)
	c.Put("c", QueryResponse{})

	if dropped := c.Purge(); dropped != 2 {
		t.Errorf("purged %d entries, want 2", dropped)
	}
	if c.Size() != 1 {
		t.Errorf("size = %d after purge, want 1", c.Size())
	}
}
