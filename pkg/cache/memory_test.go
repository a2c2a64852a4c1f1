package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type record struct {
	ID     string
	UserID string
}

func TestMemoryGetSetShouldStoreAndRetrieve(t *testing.T) {
	cache := NewMemory[*record](Config{TTL: 5 * time.Minute, MaxSize: 500})

	err := cache.Set("hash789", &record{ID: "session123", UserID: "user456"})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := cache.Get("hash789")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.ID != "session123" || retrieved.UserID != "user456" {
		t.Errorf("unexpected record %+v", retrieved)
	}
}

func TestMemoryGetNonExistentShouldReturnErrNotFound(t *testing.T) {
	cache := NewMemory[string](Config{})

	_, err := cache.Get("nonexistent")
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryExpiryShouldExpireEntriesAfterTTL(t *testing.T) {
	cache := NewMemory[string](Config{TTL: time.Minute})
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("k", "v")
	if _, err := cache.Get("k"); err != nil {
		t.Fatal("entry should exist immediately after Set")
	}

	now = now.Add(2 * time.Minute)

	if _, err := cache.Get("k"); err != ErrNotFound {
		t.Error("entry should be expired")
	}
	if cache.Len() != 0 {
		t.Errorf("expired entry should be removed, got size %d", cache.Len())
	}
}

func TestMemorySetWithTTLShouldOverrideDefault(t *testing.T) {
	cache := NewMemory[string](Config{TTL: time.Hour})
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.SetWithTTL("short", "v", time.Second)
	cache.Set("long", "v")

	now = now.Add(time.Minute)

	if _, err := cache.Get("short"); err != ErrNotFound {
		t.Error("short-lived entry should be expired")
	}
	if _, err := cache.Get("long"); err != nil {
		t.Error("default-TTL entry should still exist")
	}
}

func TestMemoryTakeShouldRemoveEntry(t *testing.T) {
	cache := NewMemory[string](Config{})
	cache.Set("token", "user-1")

	v, err := cache.Take("token")
	if err != nil || v != "user-1" {
		t.Fatalf("Take() = %q, %v", v, err)
	}
	if _, err := cache.Take("token"); err != ErrNotFound {
		t.Errorf("second Take() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryDeleteAndClear(t *testing.T) {
	cache := NewMemory[int](Config{})
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)

	if err := cache.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := cache.Delete("nonexistent"); err != nil {
		t.Errorf("Delete of non-existent key should not error, got %v", err)
	}
	if cache.Len() != 2 {
		t.Errorf("Expected size 2, got %d", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Cache should be empty after Clear, got size %d", cache.Len())
	}
}

func TestMemoryMaxSizeShouldEvictSoonestExpiring(t *testing.T) {
	cache := NewMemory[int](Config{TTL: time.Hour, MaxSize: 2})
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.SetWithTTL("soon", 1, time.Minute)
	cache.Set("later", 2)
	cache.Set("new", 3)

	if cache.Len() != 2 {
		t.Errorf("Expected size 2 after eviction, got %d", cache.Len())
	}
	if _, err := cache.Get("soon"); err != ErrNotFound {
		t.Error("entry closest to expiry should have been evicted")
	}
	if got := cache.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestMemoryStatsShouldCountHitsAndMisses(t *testing.T) {
	cache := NewMemory[string](Config{})
	cache.Set("k", "v")
	cache.Get("k")
	cache.Get("k")
	cache.Get("missing")

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Sets != 1 || stats.Size != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMemoryConcurrentAccessShouldNotRace(t *testing.T) {
	cache := NewMemory[int](Config{MaxSize: 50})
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			cache.Set(fmt.Sprintf("k%d", id), id)
		}(i)
		go func(id int) {
			defer wg.Done()
			cache.Get(fmt.Sprintf("k%d", id))
		}(i)
	}
	wg.Wait()

	if cache.Len() > 50 {
		t.Errorf("cache exceeded max size: %d", cache.Len())
	}
}
