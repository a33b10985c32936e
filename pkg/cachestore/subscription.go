package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Alwanly/cachestore/pkg/logger"
)

// Subscription is the handle of one channel's background listener.
type Subscription struct {
	channel string
	cancel  context.CancelFunc

	done chan struct{}
	err  error // terminal outcome, written before done closes
}

func newSubscription(channel string, cancel context.CancelFunc) *Subscription {
	return &Subscription{
		channel: channel,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Channel returns the subscribed channel name.
func (s *Subscription) Channel() string {
	return s.channel
}

// Done is closed once the listener has terminated and released its
// store-level subscription.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Finished reports whether the listener has terminated.
func (s *Subscription) Finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Err returns the listener's terminal error: nil after a graceful stop,
// context.Canceled after forced cancellation, or the failure that ended it.
// While the listener is still running, Err returns nil.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// cancelNow requests forced cancellation, reporting false when the listener
// has already terminated.
func (s *Subscription) cancelNow() bool {
	if s.Finished() {
		return false
	}
	s.cancel()
	return true
}

func (s *Subscription) finish(err error) {
	s.err = err
	close(s.done)
}

// runListener is the per-channel consume loop. Messages are delivered
// single-flight in receipt order; the exit flag is checked after every
// iteration (message or poll tick); a graceful stop drains whatever the
// driver has already buffered before terminating. Forced cancellation stops
// delivery at the next checkpoint, aborting any drain in progress.
func (c *Client) runListener(ctx context.Context, sub *Subscription, ps *redis.PubSub, cb Callback) {
	log := c.log.WithChannel(sub.channel)

	// Callbacks may attach fields here; they surface in the summary line.
	lc := logger.NewLogContext()
	cbCtx := logger.WithLogContext(ctx, lc)

	start := time.Now()
	delivered := 0
	var cause error

	defer func() {
		_ = ps.Close()
		sub.finish(cause)

		fields := []zap.Field{
			logger.Int(logger.FieldDelivered, delivered),
			logger.Duration("runtime", time.Since(start)),
			logger.String(logger.FieldReason, exitReason(cause)),
		}
		fields = append(fields, lc.Fields()...)
		if cause != nil && !errors.Is(cause, context.Canceled) {
			log.WithError(cause).Error("listener terminated", fields...)
		} else {
			log.Info("listener stopped", fields...)
		}
	}()

	msgs := ps.Channel()
	tick := time.NewTicker(c.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			cause = ctx.Err()
			return
		case m, ok := <-msgs:
			if !ok {
				cause = errStreamClosed
				return
			}
			if err := deliver(cbCtx, cb, newMessage(m)); err != nil {
				cause = err
				return
			}
			delivered++
		case <-tick.C:
		}

		if c.takeExitFlag(sub.channel) {
			break
		}
	}

	if c.cfg.DisableFlushOnStop {
		return
	}
	for {
		if err := ctx.Err(); err != nil {
			cause = err
			return
		}
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if err := deliver(cbCtx, cb, newMessage(m)); err != nil {
				cause = err
				return
			}
			delivered++
		default:
			return
		}
	}
}

// deliver invokes cb for one message. A callback panic is captured as the
// listener's failure instead of taking the process down.
func deliver(ctx context.Context, cb Callback, m *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic on channel %q: %v", m.Channel, r)
		}
	}()
	if cb == nil {
		return ErrNilCallback
	}
	return cb.invoke(ctx, m)
}

func exitReason(cause error) string {
	switch {
	case cause == nil:
		return "graceful"
	case errors.Is(cause, context.Canceled):
		return "cancelled"
	default:
		return "failed"
	}
}
