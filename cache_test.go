package stockx

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPageCacheKey(t *testing.T) {
	t.Run("idempotent for identical inputs", func(t *testing.T) {
		a := pageCacheKey(2, "widgets")
		b := pageCacheKey(2, "widgets")
		if a != b {
			t.Fatalf("keys differ for identical inputs: %q vs %q", a, b)
		}
	})

	t.Run("normalization folds case and whitespace", func(t *testing.T) {
		a := pageCacheKey(1, "  Widgets ")
		b := pageCacheKey(1, "widgets")
		if a != b {
			t.Fatalf("normalized inputs should share a key: %q vs %q", a, b)
		}
	})

	t.Run("differs for any differing input", func(t *testing.T) {
		base := pageCacheKey(1, "widgets")
		if pageCacheKey(2, "widgets") == base {
			t.Error("page change should change the key")
		}
		if pageCacheKey(1, "gadgets") == base {
			t.Error("query change should change the key")
		}
	})
}

func TestMemoryCache(t *testing.T) {
	t.Run("get returns what was put", func(t *testing.T) {
		c := NewMemoryCache()
		if err := c.Put("k", json.RawMessage(`{"a":1}`)); err != nil {
			t.Fatal(err)
		}
		e, ok, err := c.Get("k", 0)
		if err != nil || !ok {
			t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
		}
		if string(e.Value) != `{"a":1}` {
			t.Fatalf("unexpected value %s", e.Value)
		}
	})

	t.Run("miss on unknown key", func(t *testing.T) {
		c := NewMemoryCache()
		if _, ok, _ := c.Get("nope", 0); ok {
			t.Fatal("expected miss")
		}
	})

	t.Run("maxAge gates old entries", func(t *testing.T) {
		c := NewMemoryCache()
		c.entries["old"] = Entry{
			Value:     json.RawMessage(`1`),
			WrittenAt: time.Now().Add(-2 * time.Hour),
		}
		if _, ok, _ := c.Get("old", time.Hour); ok {
			t.Fatal("entry older than maxAge should be a miss")
		}
		if _, ok, _ := c.Get("old", 0); !ok {
			t.Fatal("maxAge<=0 should accept any age")
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		c := NewMemoryCache()
		c.Put("k", json.RawMessage(`1`))
		c.Put("k", json.RawMessage(`2`))
		if c.Len() != 1 {
			t.Fatalf("expected 1 entry, got %d", c.Len())
		}
		e, _, _ := c.Get("k", 0)
		if string(e.Value) != `2` {
			t.Fatalf("expected newest value, got %s", e.Value)
		}
	})

	t.Run("delete removes", func(t *testing.T) {
		c := NewMemoryCache()
		c.Put("k", json.RawMessage(`1`))
		c.Delete("k")
		if _, ok, _ := c.Get("k", 0); ok {
			t.Fatal("expected miss after delete")
		}
	})
}

func TestGetJSONMalformed(t *testing.T) {
	c := NewMemoryCache()
	c.Put("bad", json.RawMessage(`{not json`))
	if _, _, ok := getJSON[[]Product](c, "bad", 0); ok {
		t.Fatal("malformed cache contents must read as a miss, not an error")
	}
}
