package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		c := NewLRUCache(10)
		if err := c.Set(ctx, "tenant-001", "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, "tenant-001", "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected value1, got %s", val)
		}
	})

	t.Run("MissReturnsNilNil", func(t *testing.T) {
		c := NewLRUCache(10)
		val, err := c.Get(ctx, "tenant-001", "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil on miss, got %s", val)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, "tenant-001", "key1", []byte("one"), time.Minute)
		_ = c.Set(ctx, "tenant-002", "key1", []byte("two"), time.Minute)

		val, _ := c.Get(ctx, "tenant-001", "key1")
		if string(val) != "one" {
			t.Errorf("tenant-001 got %s", val)
		}
		val, _ = c.Get(ctx, "tenant-002", "key1")
		if string(val) != "two" {
			t.Errorf("tenant-002 got %s", val)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		c := NewLRUCache(10)
		if _, err := c.Get(ctx, "", "key1"); err == nil {
			t.Error("expected error for empty tenantID on Get")
		}
		if err := c.Set(ctx, "", "key1", []byte("x"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID on Set")
		}
	})

	t.Run("ExpiredEntryIsMiss", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, "tenant-001", "key1", []byte("value1"), 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		val, err := c.Get(ctx, "tenant-001", "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected expired entry to miss, got %s", val)
		}
	})

	t.Run("EvictsLeastRecentlyUsed", func(t *testing.T) {
		c := NewLRUCache(3)
		for i := 0; i < 3; i++ {
			_ = c.Set(ctx, "tenant-001", fmt.Sprintf("key%d", i), []byte("v"), time.Minute)
		}

		// Touch key0 so key1 is the oldest.
		_, _ = c.Get(ctx, "tenant-001", "key0")
		_ = c.Set(ctx, "tenant-001", "key3", []byte("v"), time.Minute)

		if val, _ := c.Get(ctx, "tenant-001", "key1"); val != nil {
			t.Error("expected key1 to be evicted")
		}
		if val, _ := c.Get(ctx, "tenant-001", "key0"); val == nil {
			t.Error("expected key0 to survive")
		}

		if size, capacity := c.Stats(); size != 3 || capacity != 3 {
			t.Errorf("expected size 3 of 3, got %d of %d", size, capacity)
		}
	})

	t.Run("SetOverwritesExisting", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, "tenant-001", "key1", []byte("old"), time.Minute)
		_ = c.Set(ctx, "tenant-001", "key1", []byte("new"), time.Minute)

		val, _ := c.Get(ctx, "tenant-001", "key1")
		if string(val) != "new" {
			t.Errorf("expected new, got %s", val)
		}
		if size, _ := c.Stats(); size != 1 {
			t.Errorf("expected 1 entry, got %d", size)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, "tenant-001", "key1", []byte("value1"), time.Minute)
		if err := c.Delete(ctx, "tenant-001", "key1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, "tenant-001", "key1"); val != nil {
			t.Error("expected deleted entry to miss")
		}
	})
}

func TestLRUCacheCounters(t *testing.T) {
	ctx := context.Background()

	t.Run("IncrementsWithinWindow", func(t *testing.T) {
		c := NewLRUCache(10)
		for want := int64(1); want <= 3; want++ {
			got, err := c.IncrementCounter(ctx, "tenant-001", "requests", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		}
	})

	t.Run("WindowExpiryResets", func(t *testing.T) {
		c := NewLRUCache(10)
		_, _ = c.IncrementCounter(ctx, "tenant-001", "requests", 10*time.Millisecond)
		_, _ = c.IncrementCounter(ctx, "tenant-001", "requests", 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		got, err := c.IncrementCounter(ctx, "tenant-001", "requests", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != 1 {
			t.Errorf("expected reset to 1, got %d", got)
		}
	})

	t.Run("CountersAreTenantScoped", func(t *testing.T) {
		c := NewLRUCache(10)
		_, _ = c.IncrementCounter(ctx, "tenant-001", "requests", time.Minute)
		got, _ := c.IncrementCounter(ctx, "tenant-002", "requests", time.Minute)
		if got != 1 {
			t.Errorf("expected independent counter, got %d", got)
		}
	})
}

func TestNewFactory(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("UnknownTypeRejected", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
