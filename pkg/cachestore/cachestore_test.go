package cachestore

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// newTestClient opens a client against srv. Host and port always come from
// srv; listener tuning is tightened unless the test overrides it.
func newTestClient(t *testing.T, srv *miniredis.Miniredis, cfg Config) *Client {
	t.Helper()

	port, err := strconv.Atoi(srv.Port())
	if err != nil {
		t.Fatalf("parse store port: %v", err)
	}
	cfg.Host = srv.Host()
	cfg.Port = port
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 2 * time.Second
	}

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if c.IsOpen() {
			if err := c.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		}
	})
	return c
}

func TestOpenClose(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{Prefix: "app:"})

	if !c.IsOpen() {
		t.Fatal("client should be open")
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.IsOpen() {
		t.Fatal("client should be closed")
	}
}

func TestOpenUnreachableStore(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	host := srv.Host()
	port, err := strconv.Atoi(srv.Port())
	if err != nil {
		t.Fatalf("parse store port: %v", err)
	}
	srv.Close()

	c, err := New(Config{Host: host, Port: port}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Open(context.Background()); err == nil {
		t.Fatal("expected a connection error")
	}
	if c.IsOpen() {
		t.Fatal("client should not be open after a failed dial")
	}
}

func TestCloseShutsDownSubscriptions(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{})

	sub, err := c.Subscribe(context.Background(), "events", SyncCallback(func(*Message) {}))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sub.Finished() {
		t.Fatal("listener should have terminated during Close")
	}
	if sub.Err() != nil {
		t.Fatalf("Err() = %v, want graceful stop", sub.Err())
	}
	if c.IsOpen() {
		t.Fatal("client should be closed")
	}
}

func TestUseBeforeOpenPanics(t *testing.T) {
	c, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic using the client before Open")
		}
	}()
	_ = c.Set(context.Background(), "k", "v")
}

func TestCloseBeforeOpenPanics(t *testing.T) {
	c, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic closing an unopened client")
		}
	}()
	_ = c.Close()
}

func TestDoubleOpenPanics(t *testing.T) {
	srv := miniredis.RunT(t)
	c := newTestClient(t, srv, Config{})

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on the second Open")
		}
	}()
	_ = c.Open(context.Background())
}
