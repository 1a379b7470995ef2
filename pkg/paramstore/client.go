package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates the named parameter does not exist in the store.
	ErrNotFound = errors.New("parameter not found")

	// ErrTooManyUpdates indicates a counter update collided with another
	// concurrent writer and was aborted without modifying the store.
	ErrTooManyUpdates = errors.New("too many concurrent updates")
)

// IsNotFound returns true if the error means "parameter does not exist".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTooManyUpdates returns true if the error means a counter update lost a
// race against another writer.
func IsTooManyUpdates(err error) bool {
	return errors.Is(err, ErrTooManyUpdates)
}

// Client provides parameter store operations backed by Redis.
// The client is thread-safe and can be used concurrently from multiple
// goroutines, though the error handler itself is a single sequential path.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a parameter store client from Redis connection options.
func NewClient(opts *redis.Options) *Client {
	return &Client{rdb: redis.NewClient(opts)}
}

// Close closes the underlying Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies store connectivity. Useful for fail-fast startup checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get reads the string value of a parameter.
// Returns ErrNotFound (wrapped with the key name) if the parameter does not exist.
func (c *Client) Get(ctx context.Context, name string) (string, error) {
	val, err := c.rdb.Get(ctx, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read parameter %s: %w", name, err)
	}
	return val, nil
}

// GetInt reads a string-encoded integer parameter.
// Returns ErrNotFound if the parameter does not exist, and an error if the
// stored value is not a valid integer.
func (c *Client) GetInt(ctx context.Context, name string) (int, error) {
	val, err := c.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parameter %s holds non-integer value %q: %w", name, val, err)
	}
	return n, nil
}

// Put writes a string parameter, overwriting any existing value.
func (c *Client) Put(ctx context.Context, name, value string) error {
	if err := c.rdb.Set(ctx, name, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write parameter %s: %w", name, err)
	}
	return nil
}

// PutTTL writes a string parameter that expires after ttl.
// Used for the reclamation lock flag: if the holder is killed mid-protocol,
// the claim evaporates instead of wedging the whole prefix namespace.
func (c *Client) PutTTL(ctx context.Context, name, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, name, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write parameter %s: %w", name, err)
	}
	return nil
}

// Add atomically adds delta to a string-encoded integer parameter and
// returns the resulting total. The read-modify-write runs under an
// optimistic transaction: if another writer touches the key in between, the
// update is aborted and ErrTooManyUpdates is returned with the store
// unmodified.
//
// A zero delta skips the write entirely (the current value is still read and
// validated), so callers can invoke Add unconditionally per pool.
// Returns ErrNotFound if the counter parameter has never been provisioned.
func (c *Client) Add(ctx context.Context, name string, delta int) (int, error) {
	var total int
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, name).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err != nil {
			return fmt.Errorf("failed to read parameter %s: %w", name, err)
		}

		n, err := strconv.Atoi(cur)
		if err != nil {
			return fmt.Errorf("parameter %s holds non-integer value %q: %w", name, cur, err)
		}
		total = n + delta

		if delta == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, name, strconv.Itoa(total), 0)
			return nil
		})
		return err
	}, name)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, fmt.Errorf("%w: %s", ErrTooManyUpdates, name)
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Delete removes the named parameters. Deleting a parameter that does not
// exist is not an error, so reclamation cleanup is idempotent.
func (c *Client) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, names...).Err(); err != nil {
		return fmt.Errorf("failed to delete parameters %v: %w", names, err)
	}
	return nil
}

// Channels lists the pub/sub channels with at least one active subscriber
// that match the given pattern. Used by the notifier to resolve the alert
// topic the same way the original system listed available topics.
func (c *Client) Channels(ctx context.Context, pattern string) ([]string, error) {
	channels, err := c.rdb.PubSubChannels(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// Publish delivers a message to a pub/sub channel.
func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}
