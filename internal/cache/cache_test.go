package cache

import "testing"

func TestMemoryCacheGetSetDelete(t *testing.T) {
	c := NewMemoryCache()
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected a miss on an empty cache")
	}
	c.Set("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit with value %q, got %q (ok=%v)", "v", v, ok)
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected a miss after Delete")
	}
	if err := c.Close(); err != nil {
		t.Errorf("unexpected error closing memory cache: %v", err)
	}
}

func TestBboltCachePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/cache.db"

	c1, err := NewBboltCache(path, "")
	if err != nil {
		t.Fatalf("unexpected error opening bbolt cache: %v", err)
	}
	c1.Set("alice", "token-123")
	if err := c1.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}

	c2, err := NewBboltCache(path, "")
	if err != nil {
		t.Fatalf("unexpected error reopening bbolt cache: %v", err)
	}
	defer c2.Close()
	if v, ok := c2.Get("alice"); !ok || v != "token-123" {
		t.Errorf("expected the value to survive reopen, got %q (ok=%v)", v, ok)
	}
}
