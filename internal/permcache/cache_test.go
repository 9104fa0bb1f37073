package permcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) *Cache {
	t.Helper()
	s := miniredis.RunT(t)
	cache, err := New("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestGetMissesOnEmptyCache(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "note_1", "usr_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected a miss")
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	role := "editor"
	if err := cache.Put(ctx, "note_1", "usr_1", Access{HasAccess: true, Role: &role}); err != nil {
		t.Fatalf("put: %v", err)
	}
	access, ok, err := cache.Get(ctx, "note_1", "usr_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if !access.HasAccess || access.Role == nil || *access.Role != "editor" {
		t.Fatalf("unexpected access: %+v", access)
	}
}

func TestPutCachesDenialsToo(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "note_1", "usr_2", Access{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	access, ok, err := cache.Get(ctx, "note_1", "usr_2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if access.HasAccess || access.Role != nil {
		t.Fatalf("expected cached denial, got %+v", access)
	}
}

func TestInvalidateDropsAllEntriesForNote(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	role := "viewer"
	if err := cache.Put(ctx, "note_1", "usr_1", Access{HasAccess: true, Role: &role}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Put(ctx, "note_1", "usr_2", Access{HasAccess: true, Role: &role}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Put(ctx, "note_2", "usr_1", Access{HasAccess: true, Role: &role}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := cache.Invalidate(ctx, "note_1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, ok, _ := cache.Get(ctx, "note_1", "usr_1"); ok {
		t.Fatal("expected entry for usr_1 to be dropped")
	}
	if _, ok, _ := cache.Get(ctx, "note_1", "usr_2"); ok {
		t.Fatal("expected entry for usr_2 to be dropped")
	}
	if _, ok, _ := cache.Get(ctx, "note_2", "usr_1"); !ok {
		t.Fatal("expected other note's entry to survive")
	}
}

func TestNilCacheIsInert(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "note_1", "usr_1"); ok || err != nil {
		t.Fatalf("nil cache get: ok=%v err=%v", ok, err)
	}
	if err := cache.Put(ctx, "note_1", "usr_1", Access{HasAccess: true}); err != nil {
		t.Fatalf("nil cache put: %v", err)
	}
	if err := cache.Invalidate(ctx, "note_1"); err != nil {
		t.Fatalf("nil cache invalidate: %v", err)
	}
}
