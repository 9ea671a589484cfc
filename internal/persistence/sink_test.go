package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conductor/internal/config"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisSink) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := NewRedisSink(client, "test:", 2)
	t.Cleanup(func() { sink.Close() })
	return mr, sink
}

// sinkFactories builds one of each backend for the shared contract tests.
func sinkFactories(t *testing.T) map[string]Sink {
	t.Helper()

	file, err := NewFileSink(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)

	sqlite, err := NewSQLiteSink(filepath.Join(t.TempDir(), "db", "conductor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	_, rs := setupTestRedis(t)

	return map[string]Sink{"file": file, "sqlite": sqlite, "redis": rs}
}

func TestSink_Contract(t *testing.T) {
	ctx := context.Background()

	for name, sink := range sinkFactories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := sink.Load(ctx, "memory")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, sink.Save(ctx, "memory", []byte(`{"v":1}`)))
			require.NoError(t, sink.Save(ctx, "memory", []byte(`{"v":2}`)))
			require.NoError(t, sink.Save(ctx, "other", []byte(`{"o":true}`)))

			got, err := sink.Load(ctx, "memory")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":2}`, string(got))

			got, err = sink.Load(ctx, "other")
			require.NoError(t, err)
			assert.JSONEq(t, `{"o":true}`, string(got))

			assert.ErrorIs(t, sink.Save(ctx, "../escape", nil), ErrInvalidKey)
			_, err = sink.Load(ctx, "")
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestFileSink_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.Save(context.Background(), "memory", []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "memory.json", entries[0].Name())
	assert.Equal(t, filepath.Join(dir, "memory.json"), sink.Path("memory"))
}

func TestSQLiteSink_History(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "conductor.db")
	sink, err := NewSQLiteSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Save(ctx, "memory", []byte("a")))
	require.NoError(t, sink.Save(ctx, "memory", []byte("bbb")))

	revs, err := sink.History(ctx, "memory")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, 3, revs[0].Size)
	assert.Equal(t, 1, revs[1].Size)
	assert.False(t, revs[0].SavedAt.IsZero())
	require.NoError(t, sink.Close())

	// Reopening applies no migration twice and keeps the data.
	reopened, err := NewSQLiteSink(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Load(ctx, "memory")
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(got))
}

func TestRedisSink_HistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	mr, sink := setupTestRedis(t)

	for _, v := range []string{"1", "22", "333", "4444"} {
		require.NoError(t, sink.Save(ctx, "memory", []byte(v)))
	}

	revs, err := sink.History(ctx, "memory")
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, 4, revs[0].Size)
	assert.Equal(t, 3, revs[1].Size)
	assert.Equal(t, 2, revs[2].Size)
	assert.False(t, revs[0].SavedAt.IsZero())

	assert.True(t, mr.Exists("test:snapshot:data:memory"))
	require.NoError(t, sink.Ping(ctx))

	none, err := sink.History(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewSink(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.PersistenceConfig
		wantNil bool
		wantErr bool
	}{
		{name: "none", cfg: config.PersistenceConfig{Backend: config.BackendNone}, wantNil: true},
		{name: "file", cfg: config.PersistenceConfig{Backend: config.BackendFile, Path: filepath.Join(dir, "files")}},
		{name: "sqlite", cfg: config.PersistenceConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "c.db")}},
		{name: "redis", cfg: config.PersistenceConfig{Backend: config.BackendRedis, Redis: config.RedisConfig{Addr: mr.Addr()}}},
		{name: "unknown", cfg: config.PersistenceConfig{Backend: "s3"}, wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSink(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, sink)
				return
			}
			require.NotNil(t, sink)
			assert.NoError(t, sink.Close())
		})
	}
}
