package sqlite

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	stockx "github.com/stockapp/stockx-go"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{
		DataSourceName: "file:" + filepath.Join(t.TempDir(), "stockx.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put("k", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	entry, ok, err := store.Get("k", 0)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(entry.Value) != `{"a":1}` {
		t.Fatalf("value = %s", entry.Value)
	}
	if time.Since(entry.WrittenAt) > time.Minute {
		t.Fatalf("written_at not recent: %v", entry.WrittenAt)
	}

	t.Run("overwrite replaces value and timestamp", func(t *testing.T) {
		if err := store.Put("k", json.RawMessage(`{"a":2}`)); err != nil {
			t.Fatal(err)
		}
		entry, ok, _ := store.Get("k", 0)
		if !ok || string(entry.Value) != `{"a":2}` {
			t.Fatalf("value = %s", entry.Value)
		}
	})

	t.Run("missing key is a clean miss", func(t *testing.T) {
		_, ok, err := store.Get("nope", 0)
		if err != nil || ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := store.Delete("k"); err != nil {
			t.Fatal(err)
		}
		if err := store.Delete("k"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := store.Get("k", 0); ok {
			t.Fatal("entry survived delete")
		}
	})
}

func TestCacheMaxAge(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put("k", json.RawMessage(`1`)); err != nil {
		t.Fatal(err)
	}

	// Backdate the row to test the read-side age gate.
	old := time.Now().Add(-2 * time.Hour).Unix()
	if _, err := store.db.Exec("UPDATE cache SET written_at = ? WHERE key = ?", old, "k"); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := store.Get("k", time.Hour); ok {
		t.Fatal("entry older than maxAge must read as missing")
	}
	if _, ok, _ := store.Get("k", 0); !ok {
		t.Fatal("maxAge <= 0 accepts any age")
	}
	if _, ok, _ := store.Get("k", 3*time.Hour); !ok {
		t.Fatal("entry within maxAge must be served")
	}
}

func TestPruneOlderThan(t *testing.T) {
	store := newTestStore(t)
	for _, key := range []string{"fresh", "old-1", "old-2"} {
		if err := store.Put(key, json.RawMessage(`1`)); err != nil {
			t.Fatal(err)
		}
	}
	cutoff := time.Now().Add(-8 * 24 * time.Hour).Unix()
	if _, err := store.db.Exec("UPDATE cache SET written_at = ? WHERE key LIKE 'old-%'", cutoff); err != nil {
		t.Fatal(err)
	}

	n, err := store.PruneOlderThan(7 * 24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("pruned %d rows, want 2", n)
	}
	if _, ok, _ := store.Get("fresh", 0); !ok {
		t.Fatal("fresh entry must survive the prune")
	}
}

func TestCredentials(t *testing.T) {
	store := newTestStore(t)
	creds := store.Credentials()

	if got, err := creds.Get(stockx.KeyAuthToken); err != nil || got != "" {
		t.Fatalf("missing credential: got %q, err %v", got, err)
	}
	if err := creds.Set(stockx.KeyAuthToken, "tok-1"); err != nil {
		t.Fatal(err)
	}
	if got, _ := creds.Get(stockx.KeyAuthToken); got != "tok-1" {
		t.Fatalf("got %q", got)
	}
	if err := creds.Set(stockx.KeyAuthToken, "tok-2"); err != nil {
		t.Fatal(err)
	}
	if got, _ := creds.Get(stockx.KeyAuthToken); got != "tok-2" {
		t.Fatalf("overwrite lost: %q", got)
	}
	if err := creds.Delete(stockx.KeyAuthToken); err != nil {
		t.Fatal(err)
	}
	if got, _ := creds.Get(stockx.KeyAuthToken); got != "" {
		t.Fatalf("credential survived delete: %q", got)
	}
}

func TestCredentialsSeparateFromCache(t *testing.T) {
	store := newTestStore(t)
	creds := store.Credentials()

	if err := creds.Set("auth_token", "tok"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("auth_token", json.RawMessage(`"cached"`)); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("auth_token"); err != nil {
		t.Fatal(err)
	}
	if got, _ := creds.Get("auth_token"); got != "tok" {
		t.Fatal("cache delete must not touch credentials")
	}
}

func TestClosedStore(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}

	if _, _, err := store.Get("k", 0); err != ErrStoreClosed {
		t.Fatalf("Get after close: %v", err)
	}
	if err := store.Put("k", json.RawMessage(`1`)); err != ErrStoreClosed {
		t.Fatalf("Put after close: %v", err)
	}
	if _, err := store.Credentials().Get("k"); err != ErrStoreClosed {
		t.Fatalf("credential Get after close: %v", err)
	}
}
