package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
)

type cacheKey struct {
	account    string
	credential string
}

type cacheEntry struct {
	client backend.Client
	refs   int
}

// ClientCache shares one authenticated backend client between every session
// that logs in with the same account and credential.
//
// Lookup, login and reference counting all happen under one lock, so two
// concurrent acquisitions of the same pair log in once and a release that
// drops the count to zero cannot race a new acquisition. The lock is a
// weighted semaphore so that waiting for it honours the caller's context.
type ClientCache struct {
	auth    backend.Authenticator
	lock    *semaphore.Weighted
	entries map[cacheKey]*cacheEntry
	log     *zerolog.Logger
}

// NewClientCache creates a cache that logs in through auth.
func NewClientCache(auth backend.Authenticator, logger *zerolog.Logger) *ClientCache {
	return &ClientCache{
		auth:    auth,
		lock:    semaphore.NewWeighted(1),
		entries: make(map[cacheKey]*cacheEntry),
		log:     logger,
	}
}

// ClientHandle is one reference to a cached client. Release it exactly once
// when the session ends; further calls are no-ops.
type ClientHandle struct {
	cache  *ClientCache
	key    cacheKey
	client backend.Client
	once   sync.Once
}

// Client returns the shared backend client.
func (h *ClientHandle) Client() backend.Client {
	return h.client
}

// Release drops the reference; the last release closes the client.
func (h *ClientHandle) Release() error {
	var err error
	h.once.Do(func() {
		err = h.cache.release(h.key)
	})
	return err
}

// Acquire returns a handle to the client for the pair, logging in when no
// session holds one yet.
func (c *ClientCache) Acquire(ctx context.Context, account, credential string) (*ClientHandle, error) {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.lock.Release(1)

	key := cacheKey{account: account, credential: credential}
	entry, ok := c.entries[key]
	if !ok {
		client, err := c.auth.Login(ctx, account, credential)
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", account, err)
		}
		entry = &cacheEntry{client: client}
		c.entries[key] = entry
		c.log.Info().Str("account", account).Msg("backend client created")
	}
	entry.refs++
	c.log.Debug().Str("account", account).Int("refs", entry.refs).Msg("backend client acquired")

	return &ClientHandle{cache: c, key: key, client: entry.client}, nil
}

func (c *ClientCache) release(key cacheKey) error {
	// Release must always complete, so it waits without a deadline.
	if err := c.lock.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.lock.Release(1)

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	entry.refs--
	if entry.refs > 0 {
		c.log.Debug().Str("account", key.account).Int("refs", entry.refs).Msg("backend client released")
		return nil
	}
	delete(c.entries, key)
	c.log.Info().Str("account", key.account).Msg("backend client disposed")
	if err := entry.client.Close(); err != nil {
		return fmt.Errorf("close backend client: %w", err)
	}
	return nil
}

// Len returns the number of live clients.
func (c *ClientCache) Len() int {
	if err := c.lock.Acquire(context.Background(), 1); err != nil {
		return 0
	}
	defer c.lock.Release(1)
	return len(c.entries)
}

// Close disposes every remaining client regardless of references.
func (c *ClientCache) Close() error {
	if err := c.lock.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.lock.Release(1)

	var errs error
	for key, entry := range c.entries {
		errs = multierr.Append(errs, entry.client.Close())
		delete(c.entries, key)
	}
	return errs
}
