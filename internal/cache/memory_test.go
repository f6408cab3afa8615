package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got) != "value1" {
		t.Errorf("Get = %q, want %q", got, "value1")
	}
}

func TestMemoryCache_MissReturnsErrCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	_, err := c.Get(context.Background(), "missing")
	if err != ErrCacheMiss {
		t.Errorf("Get(missing) = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCache_ExpiredEntryIsMiss(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), -time.Second); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	_, err := c.Get(ctx, "key1")
	if err != ErrCacheMiss {
		t.Errorf("Get(expired) = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), time.Minute)
	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := c.Get(ctx, "key1"); err != ErrCacheMiss {
		t.Errorf("Get(deleted) = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), time.Minute)
	c.Set(ctx, "key2", []byte("value2"), time.Minute)

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}

	if _, err := c.Get(ctx, "key1"); err != ErrCacheMiss {
		t.Errorf("Get(key1) after Clear = %v, want ErrCacheMiss", err)
	}
	if _, err := c.Get(ctx, "key2"); err != ErrCacheMiss {
		t.Errorf("Get(key2) after Clear = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), time.Minute)

	got, _ := c.Get(ctx, "key1")
	got[0] = 'X'

	again, _ := c.Get(ctx, "key1")
	if string(again) != "value1" {
		t.Errorf("cached value was mutated through returned slice: %q", again)
	}
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache()

	if err := c.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	// 2回目のCloseもpanicせずnilを返す
	if err := c.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}
