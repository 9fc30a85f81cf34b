package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/deckhand/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces watermark keys.
const DefaultPrefix = "deckhand:stage:"

// Store implements ports.StageStore using Redis. Each request id is one
// string key holding the decimal stage number, tracked in a sorted-set index.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for watermarks of abandoned requests.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for watermarks.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client so a Locker can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(requestID string) string {
	return s.prefix + requestID
}

func (s *Store) indexKey() string {
	return strings.TrimSuffix(s.prefix, ":")
}

// Save persists the watermark to Redis.
func (s *Store) Save(ctx context.Context, requestID string, stage int) error {
	if requestID == "" {
		return fmt.Errorf("requestID cannot be empty")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(requestID), domain.FormatStage(stage), s.ttl)

	// Score is the expiry instant so List can prune lazily.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: requestID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the watermark from Redis.
func (s *Store) Load(ctx context.Context, requestID string) (int, error) {
	val, err := s.client.Get(ctx, s.key(requestID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return 0, domain.ErrStageNotFound
		}
		return 0, fmt.Errorf("failed to get from redis: %w", err)
	}
	return domain.ParseStage(val)
}

// Delete removes the watermark.
func (s *Store) Delete(ctx context.Context, requestID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(requestID))
	pipe.ZRem(ctx, s.indexKey(), requestID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns the request ids in the index, pruning expired entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired stages: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
