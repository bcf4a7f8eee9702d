package universal

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInMemoryCacheExtractRestoreRoundTrip(t *testing.T) {
	source := NewInMemoryCache()
	source.Write("Viewer", map[string]any{"id": "u1", "roles": []any{"admin"}})
	source.Write(`Post({"id":1})`, map[string]any{"title": "hello"})

	snapshot := source.Extract()
	target := NewInMemoryCache()
	if err := target.Restore(snapshot); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if diff := cmp.Diff(source.Extract(), target.Extract()); diff != "" {
		t.Fatalf("round trip mismatch (-source +target):\n%s", diff)
	}
}

func TestInMemoryCacheCopiesOnReadAndExtract(t *testing.T) {
	cache := NewInMemoryCache()
	cache.Write("Viewer", map[string]any{"id": "u1"})

	read, _ := cache.Read("Viewer")
	read.(map[string]any)["id"] = "changed"
	snapshot := cache.Extract()
	snapshot["Viewer"].(map[string]any)["id"] = "changed"

	got, ok := cache.Read("Viewer")
	if !ok || got.(map[string]any)["id"] != "u1" {
		t.Fatalf("expected cache contents isolated from callers, got %+v", got)
	}
}

func TestInMemoryCacheRestoreMerges(t *testing.T) {
	cache := NewInMemoryCache()
	cache.Write("local", true)
	if err := cache.Restore(Snapshot{"remote": 1.0}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected merged records, got %d", cache.Len())
	}
	if err := cache.Restore(Snapshot{"": 1}); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
	cache.Reset()
	if cache.Len() != 0 {
		t.Fatalf("expected reset to drop records")
	}
}

func TestInMemoryCacheNilReceiver(t *testing.T) {
	var cache *InMemoryCache

	cache.Write("Viewer", 1)
	cache.Reset()
	if _, ok := cache.Read("Viewer"); ok {
		t.Fatalf("expected nil cache to hold nothing")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected zero length for nil cache")
	}
	if err := cache.Restore(Snapshot{"Viewer": 1}); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot from nil cache, got %v", err)
	}
}
