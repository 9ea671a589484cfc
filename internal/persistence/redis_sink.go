package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink stores the current snapshot of each key as a string value and
// keeps a capped list of previous versions alongside it.
type RedisSink struct {
	client    *redis.Client
	keyPrefix string
	history   int
}

// NewRedisSink wraps client. history is how many previous versions are
// kept per key; zero keeps none.
func NewRedisSink(client *redis.Client, keyPrefix string, history int) *RedisSink {
	if keyPrefix == "" {
		keyPrefix = "conductor:"
	}
	if history < 0 {
		history = 0
	}
	return &RedisSink{
		client:    client,
		keyPrefix: keyPrefix + "snapshot:",
		history:   history,
	}
}

// dataKey returns the Redis key holding the current snapshot.
func (s *RedisSink) dataKey(key string) string {
	return s.keyPrefix + "data:" + key
}

// historyKey returns the Redis list of previous versions.
func (s *RedisSink) historyKey(key string) string {
	return s.keyPrefix + "history:" + key
}

// Save replaces the current snapshot, pushing the old one onto history.
func (s *RedisSink) Save(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	prev, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read current snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(key), data, 0)
	pipe.Set(ctx, s.dataKey(key)+":saved_at", strconv.FormatInt(time.Now().UnixMilli(), 10), 0)
	if s.history > 0 && prev != nil {
		pipe.LPush(ctx, s.historyKey(key), prev)
		pipe.LTrim(ctx, s.historyKey(key), 0, int64(s.history-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the current snapshot.
func (s *RedisSink) Load(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

// History lists the current version followed by the kept previous ones.
// Only the current version carries a SavedAt time.
func (s *RedisSink) History(ctx context.Context, key string) ([]Revision, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	current, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	rev := Revision{Key: key, Size: len(current)}
	if ms, err := s.client.Get(ctx, s.dataKey(key)+":saved_at").Int64(); err == nil {
		rev.SavedAt = time.UnixMilli(ms).UTC()
	}
	revs := []Revision{rev}

	older, err := s.client.LRange(ctx, s.historyKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	for _, data := range older {
		revs = append(revs, Revision{Key: key, Size: len(data)})
	}
	return revs, nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
