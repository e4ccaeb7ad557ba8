// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loggedIn = State{
	Token:  "abc123",
	Role:   "librarian",
	UserID: "42",
	User:   `{"id":42,"name":"Ada"}`,
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "test:", ttl), mr
}

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(State{})
		},
		"file": func(t *testing.T) Store {
			return NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))
		},
		"redis": func(t *testing.T) Store {
			store, _ := newRedisStore(t, 0)
			return store
		},
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := build(t)

			got, err := store.Get(ctx)
			require.NoError(t, err)
			assert.True(t, got.Empty(), "fresh store should be empty")

			require.NoError(t, store.Set(ctx, loggedIn))
			got, err = store.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, loggedIn, got)

			token, err := Token(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, "abc123", token)

			require.NoError(t, store.Clear(ctx))
			got, err = store.Get(ctx)
			require.NoError(t, err)
			assert.Empty(t, got.Token)
			assert.Empty(t, got.Role)
			assert.Empty(t, got.UserID)
			assert.Empty(t, got.User)

			// clearing twice is a no-op
			require.NoError(t, store.Clear(ctx))
		})
	}
}

func TestMemoryStoreConcurrentClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(loggedIn)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.Get(ctx)
		}()
		go func() {
			defer wg.Done()
			_ = store.Clear(ctx)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)
	require.NoError(t, store.Set(context.Background(), loggedIn))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// a second store on the same path sees the persisted session
	got, err := NewFileStore(path).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, loggedIn, got)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Get(context.Background())
	require.Error(t, err)
}

func TestRedisStoreTTLAndAtomicClear(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Hour)

	require.NoError(t, store.Set(ctx, loggedIn))
	assert.True(t, mr.Exists("test:session"))
	assert.Equal(t, time.Hour, mr.TTL("test:session"))
	assert.Equal(t, "abc123", mr.HGet("test:session", "token"))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("test:session"))
}

func TestRedisStoreSetReplacesFields(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, 0)

	require.NoError(t, store.Set(ctx, loggedIn))
	require.NoError(t, store.Set(ctx, State{Token: "rotated"}))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{Token: "rotated"}, got)
}

func TestOpen(t *testing.T) {
	store, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "s.json")
	store, err = Open(Options{Backend: "FILE", FilePath: path})
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, store)
	assert.Equal(t, path, store.(*FileStore).Path())

	mr := miniredis.RunT(t)
	store, err = Open(Options{Backend: BackendRedis, RedisURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)

	_, err = Open(Options{Backend: BackendRedis})
	require.Error(t, err)

	_, err = Open(Options{Backend: "localstorage"})
	require.Error(t, err)
}
