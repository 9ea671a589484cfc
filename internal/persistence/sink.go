// Package persistence stores serialized memory snapshots. A Sink knows
// nothing about the document it holds; it saves and loads bytes by key.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ShayCichocki/conductor/internal/config"
)

// ErrNotFound means nothing has been saved under the key.
var ErrNotFound = errors.New("snapshot not found")

// ErrInvalidKey means a key is empty or contains characters a backend
// cannot store safely.
var ErrInvalidKey = errors.New("invalid snapshot key")

// Sink saves and loads snapshots by key. Save replaces the current value;
// Load returns the latest one.
type Sink interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Revision describes one stored version of a key.
type Revision struct {
	Key     string
	Size    int
	SavedAt time.Time
}

// Historian is implemented by sinks that keep earlier versions.
type Historian interface {
	History(ctx context.Context, key string) ([]Revision, error)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// NewSink creates the sink selected by cfg.Backend. The none backend
// returns a nil Sink and no error.
func NewSink(cfg config.PersistenceConfig) (Sink, error) {
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendFile:
		sink, err := NewFileSink(cfg.Path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case config.BackendSQLite:
		sink, err := NewSQLiteSink(cfg.Path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisSink(client, cfg.Redis.KeyPrefix, cfg.Redis.History), nil
	default:
		return nil, fmt.Errorf("unsupported persistence backend: %s", cfg.Backend)
	}
}
