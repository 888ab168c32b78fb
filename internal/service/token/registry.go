// Package token maintains the push-token registry: each user holds at
// most one active token and each token belongs to at most one user.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"

	"bazaar/internal/repository"
	"bazaar/pkg/lock"
	"bazaar/pkg/log"
	"bazaar/pkg/utils"
)

// Registry push token registry interface
type Registry interface {
	// Upsert repoints the user and token to each other atomically
	Upsert(ctx context.Context, userKey, token, platform string) error

	// Revoke removes the user's token, idempotent
	Revoke(ctx context.Context, userKey string) error

	// Resolve returns the tokens for a batch of users in one round trip;
	// users without a token are silently omitted
	Resolve(ctx context.Context, userKeys []string) ([]string, error)
}

// registry push token registry implementation
type registry struct {
	repo  repository.TokenRepository
	redis *redis.Client // optional, serializes cross-instance upserts
	cache *bigcache.BigCache
}

// NewRegistry creates a token registry. The redis client may be nil, in
// which case upserts rely on the database transaction alone. cacheTTL
// bounds staleness of the resolve cache.
func NewRegistry(repo repository.TokenRepository, redisClient *redis.Client, cacheTTL time.Duration, cacheSizeMB int) (Registry, error) {
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	cfg := bigcache.DefaultConfig(cacheTTL)
	if cacheSizeMB > 0 {
		cfg.HardMaxCacheSize = cacheSizeMB
	}
	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}

	return &registry{
		repo:  repo,
		redis: redisClient,
		cache: cache,
	}, nil
}

// placeholder token values seen from clients that never obtained a real
// token; they must be rejected before any storage write
var placeholderTokens = map[string]struct{}{
	"":          {},
	"null":      {},
	"undefined": {},
	"(null)":    {},
}

// IsPlaceholder reports whether a token value is a client-side placeholder
func IsPlaceholder(token string) bool {
	_, ok := placeholderTokens[token]
	return ok
}

// Upsert deletes the user's stale row and the token's stale owner, then
// inserts the new pairing. The three writes run in one transaction so a
// failure rolls back fully.
func (r *registry) Upsert(ctx context.Context, userKey, token, platform string) error {
	if userKey == "" {
		return utils.ErrInvalidParam
	}
	if IsPlaceholder(token) {
		return utils.ErrTokenRejected
	}

	if r.redis != nil {
		l := lock.NewRedisLock(r.redis,
			fmt.Sprintf("push_token:lock:%s", utils.SHA256(token)),
			userKey,
			5*time.Second,
		)
		if err := l.TryLock(ctx, 10, 100*time.Millisecond); err != nil {
			return fmt.Errorf("failed to serialize token upsert: %w", err)
		}
		defer func() {
			if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("Failed to release token upsert lock")
			}
		}()
	}

	// The token may be moving between accounts; drop the previous owner's
	// cached resolution before the ownership flips.
	if prev, err := r.repo.GetByToken(ctx, token); err == nil && prev != nil {
		_ = r.cache.Delete(prev.UserKey)
	}

	if err := r.repo.Replace(ctx, userKey, token, platform); err != nil {
		return fmt.Errorf("token upsert failed: %w", err)
	}

	_ = r.cache.Delete(userKey)
	return nil
}

// Revoke removes the user's token
func (r *registry) Revoke(ctx context.Context, userKey string) error {
	if userKey == "" {
		return utils.ErrInvalidParam
	}
	if err := r.repo.DeleteByUser(ctx, userKey); err != nil {
		return err
	}
	_ = r.cache.Delete(userKey)
	return nil
}

// Resolve returns tokens for a batch of users, serving cached entries
// and fetching the remainder in a single query
func (r *registry) Resolve(ctx context.Context, userKeys []string) ([]string, error) {
	tokens := make([]string, 0, len(userKeys))
	missing := make([]string, 0, len(userKeys))

	for _, key := range userKeys {
		if data, err := r.cache.Get(key); err == nil {
			tokens = append(tokens, string(data))
			continue
		}
		missing = append(missing, key)
	}

	if len(missing) == 0 {
		return tokens, nil
	}

	rows, err := r.repo.ListByUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		tokens = append(tokens, row.Token)
		if err := r.cache.Set(row.UserKey, []byte(row.Token)); err != nil {
			log.WithError(err).Debug("Failed to cache token resolution")
		}
	}

	return tokens, nil
}
