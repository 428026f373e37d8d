package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisCache(RedisOptions{Addr: mr.Addr(), Prefix: "test:"})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_GetSetTTL(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want miss", ok, err)
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("key not stored under prefix")
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get(k) = %q, %v, %v", got, ok, err)
	}
	remaining, ok, err := c.TTL(ctx, "k")
	if err != nil || !ok || remaining != time.Hour {
		t.Fatalf("TTL(k) = %v, %v, %v; want 1h", remaining, ok, err)
	}
}

func TestRedisCache_AgeAndExpiry(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()
	ttl := 1800 * time.Second
	_ = c.Set(ctx, "k", []byte("v"), ttl)

	mr.FastForward(600 * time.Second)
	age, err := Age(ctx, c, "k", ttl)
	if err != nil || age == nil || *age != 600 {
		t.Fatalf("Age() = %v, %v; want 600", age, err)
	}

	mr.FastForward(1200 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("Get() hit after expiry")
	}
	if age, _ := Age(ctx, c, "k", ttl); age != nil {
		t.Fatalf("Age() after expiry = %d, want nil", *age)
	}
}

func TestRedisCache_KeyWithoutExpiry(t *testing.T) {
	c, mr := newTestRedis(t)
	if err := mr.Set("test:k", "v"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.TTL(context.Background(), "k"); err != nil || ok {
		t.Errorf("TTL() = ok %v, err %v; want absent for persistent key", ok, err)
	}
}

func TestRedisCache_InvalidTTL(t *testing.T) {
	c, _ := newTestRedis(t)
	if err := c.Set(context.Background(), "k", []byte("v"), 0); err != ErrInvalidTTL {
		t.Errorf("Set(ttl=0) error = %v, want ErrInvalidTTL", err)
	}
}

func TestRedisCache_Unavailable(t *testing.T) {
	c := NewRedisCache(RedisOptions{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer c.Close()
	ctx := context.Background()

	if err := c.Ping(ctx); err == nil {
		t.Error("Ping() error = nil with server down")
	}
	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("Get() error = nil with server down")
	}
}
