// Package idempotency caches the first response to a keyed merchant request
// so client retries do not create duplicate payments.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	idempotencyDatamodel "github.com/frahmantamala/paygate/internal/core/datamodel/idempotency"
)

// TTL is how long a stored response is replayed.
const TTL = 24 * time.Hour

// Header carries the client-supplied key.
const Header = "Idempotency-Key"

type Key = idempotencyDatamodel.Key

var ErrKeyNotFound = errors.New("idempotency key not found")

type Repository interface {
	// GetLive returns the entry only while expires_at > now.
	GetLive(ctx context.Context, key, merchantID string, now time.Time) (*Key, error)
	// Put inserts entry, replacing an expired one. A live entry is left as is.
	Put(ctx context.Context, entry *Key, now time.Time) error
}

type Cache struct {
	repo   Repository
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewCache(repo Repository, logger *slog.Logger) *Cache {
	return &Cache{
		repo:   repo,
		ttl:    TTL,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Lookup returns the cached response for (key, merchant) if it has not expired.
func (c *Cache) Lookup(ctx context.Context, key, merchantID string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	entry, err := c.repo.GetLive(ctx, key, merchantID, c.now())
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return entry.Response, true, nil
}

// Store saves response under (key, merchant) for TTL and returns the response
// that is now cached. When a concurrent request stored first, its response
// wins and is returned instead.
func (c *Cache) Store(ctx context.Context, key, merchantID string, response []byte) ([]byte, error) {
	if key == "" {
		return response, nil
	}
	now := c.now()
	entry := &Key{
		Key:        key,
		MerchantID: merchantID,
		Response:   response,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.ttl),
	}
	if err := c.repo.Put(ctx, entry, now); err != nil {
		return nil, fmt.Errorf("store idempotency key: %w", err)
	}

	live, err := c.repo.GetLive(ctx, key, merchantID, now)
	if err != nil {
		return nil, fmt.Errorf("reload idempotency key: %w", err)
	}
	if string(live.Response) != string(response) {
		c.logger.Warn("idempotency key already stored by a concurrent request",
			"idempotency_key", key,
			"merchant_id", merchantID)
	}
	return live.Response, nil
}
