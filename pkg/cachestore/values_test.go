package cachestore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMissingKey(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{Prefix: "app:"})
	ctx := context.Background()

	_, err := c.Get(ctx, "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(absent) = %v, want ErrNotFound", err)
	}
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("Get(absent) = %v, want the driver nil reply preserved", err)
	}
	n, err := c.Exists(ctx, "absent")
	if err != nil || n != 0 {
		t.Fatalf("Exists(absent) = %d, %v, want 0, nil", n, err)
	}
	if err := c.Delete(ctx, "absent"); err != nil {
		t.Fatalf("Delete(absent): %v", err)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{Prefix: "app:"})
	ctx := context.Background()

	if err := c.Set(ctx, "greeting", "hello"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Get = %q, want %q", got, "hello")
	}

	// The stored key carries the prefix, the bare key does not exist.
	if !srv.Exists("app:greeting") {
		t.Fatal("store should hold the prefixed key")
	}
	if srv.Exists("greeting") {
		t.Fatal("store should not hold the bare key")
	}
}

func TestAppend(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{Prefix: "app:"})
	ctx := context.Background()

	if err := c.Append(ctx, "log", "a"); err != nil {
		t.Fatalf("Append to missing key: %v", err)
	}
	if err := c.Append(ctx, "log", "b"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := c.Get(ctx, "log")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "ab" {
		t.Fatalf("Get = %q, want %q", got, "ab")
	}
}

func TestMSetExistsDelete(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{Prefix: "app:"})
	ctx := context.Background()

	if err := c.MSet(ctx, nil); err != nil {
		t.Fatalf("MSet with no pairs: %v", err)
	}
	if err := c.MSet(ctx, map[string]any{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("MSet: %v", err)
	}

	n, err := c.Exists(ctx, "a", "b", "missing")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if n != 2 {
		t.Fatalf("Exists = %d, want 2", n)
	}
	// Repeated keys count once per occurrence, as EXISTS does.
	if n, err = c.Exists(ctx, "a", "a", "b"); err != nil || n != 3 {
		t.Fatalf("Exists with a repeated key = %d, %v, want 3, nil", n, err)
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ = c.Exists(ctx, "a", "b"); n != 1 {
		t.Fatalf("Exists after one delete = %d, want 1", n)
	}
	if err := c.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ = c.Exists(ctx, "a", "b"); n != 0 {
		t.Fatalf("Exists after delete = %d, want 0", n)
	}
}

func TestExpire(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{Prefix: "app:"})
	ctx := context.Background()

	if err := c.Set(ctx, "temp", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Expire(ctx, "temp", time.Second); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if _, err := c.Get(ctx, "temp"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	srv.FastForward(time.Second + ExpireAccuracy)

	if _, err := c.Get(ctx, "temp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after expiry = %v, want ErrNotFound", err)
	}
}

func TestClearIsScopedToPrefix(t *testing.T) {
	srv := miniredis.RunT(t)
	mine := newTestClient(t, srv, Config{Prefix: "ns:"})
	other := newTestClient(t, srv, Config{Prefix: "other:"})
	ctx := context.Background()

	if err := mine.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := other.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := mine.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if srv.Exists("ns:k") {
		t.Fatal("prefixed key should be gone")
	}
	if !srv.Exists("other:k") {
		t.Fatal("foreign prefix should survive the clear")
	}
}

func TestClearSweepsAllPages(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{Prefix: "ns:", ScanCount: 8})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := c.Set(ctx, fmt.Sprintf("k%02d", i), "v"); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for i := 0; i < 50; i++ {
		if srv.Exists(fmt.Sprintf("ns:k%02d", i)) {
			t.Fatalf("key k%02d survived the clear", i)
		}
	}
}
