// Package cachestore provides a prefix-namespaced client for a Redis cache
// store with background pub/sub subscription listeners.
//
// Every key is transparently prefixed with Config.Prefix so multiple logical
// caches can share one store. Each subscription runs one background listener
// goroutine that delivers messages to a caller-supplied callback, with
// graceful stop via exit flags and coordinated shutdown of the whole set.
package cachestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Alwanly/cachestore/pkg/logger"
)

// Client is a namespaced cache store client. It owns one driver connection
// pool and the registry of subscription listeners running above it.
type Client struct {
	cfg Config
	log *logger.CanonicalLogger

	mu    sync.Mutex
	rdb   *redis.Client
	subs  map[string]*Subscription
	exits map[string]struct{}
}

// New validates cfg, fills defaulted fields, and returns an inert client.
// No network I/O happens until Open. A nil log disables client logging.
func New(cfg Config, log *logger.CanonicalLogger) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	// Instance ID so log lines from clients sharing one process stay apart.
	id := uuid.Must(uuid.NewV7()).String()

	return &Client{
		cfg:   cfg,
		log:   log.WithClientID(id),
		subs:  make(map[string]*Subscription),
		exits: make(map[string]struct{}),
	}, nil
}

// Open dials the store with the configured pool and verifies the connection
// with a ping. Opening an already-open client panics.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.rdb != nil {
		c.mu.Unlock()
		panic("cachestore: client already open")
	}
	c.mu.Unlock()

	addr := c.cfg.addr()
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: c.cfg.Password,
		DB:       c.cfg.DB,
		PoolSize: c.cfg.MaxConnections,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to connect to cache store at %s: %w", addr, err)
	}

	c.mu.Lock()
	if c.rdb != nil {
		c.mu.Unlock()
		_ = rdb.Close()
		panic("cachestore: client already open")
	}
	c.rdb = rdb
	c.mu.Unlock()

	c.log.Info("cache store opened",
		logger.String(logger.FieldAddr, addr),
		logger.String(logger.FieldPrefix, c.cfg.Prefix),
		logger.Int("max_connections", c.cfg.MaxConnections),
	)
	return nil
}

// Close shuts down every subscription listener, then releases the store
// connection. Closing a client that is not open panics.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.rdb == nil {
		c.mu.Unlock()
		panic("cachestore: client is not open")
	}
	c.mu.Unlock()

	c.CloseSubscriptions()

	c.mu.Lock()
	if len(c.subs) != 0 {
		c.mu.Unlock()
		panic("cachestore: subscription registry not empty after shutdown")
	}
	rdb := c.rdb
	c.rdb = nil
	c.mu.Unlock()

	if rdb == nil {
		panic("cachestore: client is not open")
	}
	if err := rdb.Close(); err != nil {
		return fmt.Errorf("failed to close cache store connection: %w", err)
	}

	c.log.Info("cache store closed")
	return nil
}

// IsOpen reports whether the client currently holds a store connection.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rdb != nil
}

// Ping checks that the store connection is healthy.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis().Ping(ctx).Err()
}

// redis returns the live driver client. Using the client before Open or
// after Close is a programming error.
func (c *Client) redis() *redis.Client {
	c.mu.Lock()
	rdb := c.rdb
	c.mu.Unlock()
	if rdb == nil {
		panic("cachestore: client is not open")
	}
	return rdb
}
