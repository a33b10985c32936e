package cachestore

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Alwanly/cachestore/pkg/logger"
)

// Subscribe opens a store-level subscription on channel and spawns a
// background listener that feeds every received message to cb. Channel names
// are not namespaced by the configured prefix, so clients with different
// prefixes can exchange messages on shared channels.
//
// Subscribe returns once the store has acknowledged the subscription;
// messages published after it returns are guaranteed to reach cb. A second
// Subscribe on the same channel fails with ErrAlreadySubscribed while the
// first listener is live; once that listener has terminated, subscribing
// again replaces the old registry entry.
func (c *Client) Subscribe(ctx context.Context, channel string, cb Callback) (*Subscription, error) {
	rdb := c.redis()

	c.mu.Lock()
	if prev, ok := c.subs[channel]; ok && !prev.Finished() {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, channel)
	}
	c.mu.Unlock()

	ps := rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", channel, err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(channel, cancel)

	c.mu.Lock()
	if prev, ok := c.subs[channel]; ok && !prev.Finished() {
		c.mu.Unlock()
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, channel)
	}
	c.subs[channel] = sub
	c.mu.Unlock()

	go c.runListener(lctx, sub, ps, cb)

	c.log.Debug("subscribed", logger.String(logger.FieldChannel, channel))
	return sub, nil
}

// Publish sends value to channel and returns the number of subscribers that
// received it. The channel name is used as given, without the key prefix.
func (c *Client) Publish(ctx context.Context, channel string, value any) (int64, error) {
	n, err := c.redis().Publish(ctx, channel, value).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %q: %w", channel, err)
	}
	return n, nil
}

// StopSubscription raises the graceful exit flag for channel. The listener
// honors it at its next checkpoint, drains buffered messages and terminates.
// Raising the flag for an unknown channel is a no-op that is consumed by the
// next listener subscribed there.
func (c *Client) StopSubscription(channel string) {
	c.mu.Lock()
	c.exits[channel] = struct{}{}
	c.mu.Unlock()
}

// StopAllSubscriptions raises the graceful exit flag for every registered
// subscription.
func (c *Client) StopAllSubscriptions() {
	c.mu.Lock()
	for channel := range c.subs {
		c.exits[channel] = struct{}{}
	}
	c.mu.Unlock()
}

// takeExitFlag consumes the exit flag for channel, reporting whether it was
// raised. Check and clear are one atomic step so a flag is honored by exactly
// one listener pass.
func (c *Client) takeExitFlag(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.exits[channel]; !ok {
		return false
	}
	delete(c.exits, channel)
	return true
}

// WaitSubscription blocks until the listener for channel terminates and
// returns its terminal error, or until ctx is done. The registry entry is
// kept, so the outcome can be inspected again afterwards.
func (c *Client) WaitSubscription(ctx context.Context, channel string) error {
	c.mu.Lock()
	sub, ok := c.subs[channel]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, channel)
	}

	select {
	case <-sub.Done():
		return sub.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelSubscription forces the listener for channel to terminate without
// draining. It reports whether a running listener was cancelled; termination
// is not awaited.
func (c *Client) CancelSubscription(channel string) bool {
	c.mu.Lock()
	sub, ok := c.subs[channel]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return sub.cancelNow()
}

// SubscriptionChannels returns the registered channel names in sorted order.
func (c *Client) SubscriptionChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	channels := make([]string, 0, len(c.subs))
	for channel := range c.subs {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

// Subscription returns the handle registered for channel.
func (c *Client) Subscription(channel string) (*Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[channel]
	return sub, ok
}

// CloseSubscriptions shuts down every listener and empties the registry.
// Each listener is asked to stop gracefully first; listeners that have not
// terminated within the configured close timeout are cancelled. Safe to call
// with an empty registry, and called by Close.
func (c *Client) CloseSubscriptions() {
	c.mu.Lock()
	handles := make([]*Subscription, 0, len(c.subs))
	for channel, sub := range c.subs {
		c.exits[channel] = struct{}{}
		handles = append(handles, sub)
	}
	c.mu.Unlock()

	if len(handles) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CloseTimeout)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		for _, sub := range handles {
			g.Go(func() error {
				select {
				case <-sub.Done():
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		if err := g.Wait(); err != nil {
			forced := make([]string, 0, len(handles))
			for _, sub := range handles {
				if sub.cancelNow() {
					forced = append(forced, sub.Channel())
				}
			}
			c.log.Info("graceful shutdown timed out, cancelling listeners",
				logger.Strings(logger.FieldChannels, forced),
				logger.Duration("timeout", c.cfg.CloseTimeout))
		}
	}

	c.mu.Lock()
	c.subs = make(map[string]*Subscription)
	c.exits = make(map[string]struct{})
	c.mu.Unlock()
}
