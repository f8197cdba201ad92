// package statestore issues and redeems the single-use OAuth state tokens that bind a provider
// callback to the user who started the connect flow. Tokens live in Redis with a TTL.
package statestore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	// TTL is how long an issued state token stays redeemable.
	TTL = 300 * time.Second

	keyPrefix  = "state:"
	tokenBytes = 16
)

// Store keeps state tokens in any [redis.Cmdable].
type Store struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *log.Logger
}

// New creates a Store with the default [TTL].
func New(rdb redis.Cmdable, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{rdb: rdb, ttl: TTL, logger: shared.WithLogger(logger, "component", "statestore")}
}

// NewRedisClient connects to the configured Redis and verifies it with a ping.
func NewRedisClient(ctx context.Context, cfg shared.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis at %s: %v", shared.ErrConfiguration, cfg.Addr, err)
	}
	return client, nil
}

func key(state string) string {
	return keyPrefix + state
}

// Create issues a fresh token bound to userID.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := hex.EncodeToString(buf)

	if err := s.rdb.Set(ctx, key(state), userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}

	s.logger.Debug("state issued", "user", userID)
	return state, nil
}

// Pop redeems state and returns the user it was issued to.
// The read and the delete happen in one GETDEL, so a token is redeemable exactly once.
func (s *Store) Pop(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", shared.ErrReplayOrExpired
	}

	userID, err := s.rdb.GetDel(ctx, key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", shared.ErrReplayOrExpired
	}
	if err != nil {
		return "", fmt.Errorf("failed to redeem state: %w", err)
	}
	return userID, nil
}

// Delete discards state without redeeming it. Unknown tokens are ignored.
func (s *Store) Delete(ctx context.Context, state string) error {
	if err := s.rdb.Del(ctx, key(state)).Err(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}
