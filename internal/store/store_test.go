package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askcos/prediction-gateway/internal/store"
)

func newRecord(handle string, state store.State) store.Record {
	return store.Record{
		Handle:      handle,
		Adapter:     "retro_graph2smiles",
		Queue:       "retro_graph2smiles",
		Priority:    1,
		State:       state,
		SubmittedAt: time.Now(),
	}
}

// storeFactories lets every behavioral test run against both implementations.
func storeFactories(t *testing.T) map[string]func(ttl time.Duration) store.Store {
	return map[string]func(ttl time.Duration) store.Store{
		"memory": func(ttl time.Duration) store.Store {
			return store.NewMemoryStore(ttl, 0)
		},
		"sqlite": func(ttl time.Duration) store.Store {
			s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"), ttl, nil)
			require.NoError(t, err)
			return s
		},
	}
}

// =============================================================================
// PUT / GET
// =============================================================================

func TestStore_PutGet(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)
			defer s.Close()
			ctx := context.Background()

			rec := newRecord("task-1", store.StateQueued)
			require.NoError(t, s.Put(ctx, rec))

			got, ok, err := s.Get(ctx, "task-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "retro_graph2smiles", got.Adapter)
			assert.Equal(t, store.StateQueued, got.State)
			assert.Equal(t, 1, got.Priority)
			assert.True(t, rec.SubmittedAt.Equal(got.SubmittedAt))
			assert.Nil(t, got.StartedAt)
		})
	}
}

func TestStore_UnknownHandle(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)
			defer s.Close()

			_, ok, err := s.Get(context.Background(), "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_OverwriteTransitionsState(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)
			defer s.Close()
			ctx := context.Background()

			rec := newRecord("task-2", store.StateRunning)
			require.NoError(t, s.Put(ctx, rec))

			done := time.Now()
			rec.State = store.StateSucceeded
			rec.CompletedAt = &done
			rec.StatusCode = 200
			rec.Result = json.RawMessage(`{"status_code":200,"message":"","result":[]}`)
			require.NoError(t, s.Put(ctx, rec))

			got, ok, err := s.Get(ctx, "task-2")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, store.StateSucceeded, got.State)
			assert.JSONEq(t, string(rec.Result), string(got.Result))
			require.NotNil(t, got.CompletedAt)
			assert.True(t, done.Equal(*got.CompletedAt))
		})
	}
}

// =============================================================================
// RETENTION WINDOW
// =============================================================================

func TestStore_ExpiredRecordIsNotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(50 * time.Millisecond)
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, newRecord("task-3", store.StateSucceeded)))
			_, ok, err := s.Get(ctx, "task-3")
			require.NoError(t, err)
			require.True(t, ok)

			time.Sleep(150 * time.Millisecond)

			_, ok, err = s.Get(ctx, "task-3")
			require.NoError(t, err)
			assert.False(t, ok, "expired record must not be returned")
		})
	}
}

func TestMemoryStore_MaxEntriesEvictsOldest(t *testing.T) {
	s := store.NewMemoryStore(time.Minute, 2)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newRecord("a", store.StateQueued)))
	require.NoError(t, s.Put(ctx, newRecord("b", store.StateQueued)))
	require.NoError(t, s.Put(ctx, newRecord("c", store.StateQueued)))

	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore(time.Minute, 0)
	defer s.Close()
	ctx := context.Background()

	rec := newRecord("copy", store.StateSucceeded)
	rec.Result = json.RawMessage(`{"x":1}`)
	require.NoError(t, s.Put(ctx, rec))

	got, _, _ := s.Get(ctx, "copy")
	got.Result[2] = 'y'

	again, _, _ := s.Get(ctx, "copy")
	assert.Equal(t, `{"x":1}`, string(again.Result))
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     store.Config
		wantErr string
	}{
		{name: "memory", cfg: store.Config{Type: store.TypeMemory, TTL: time.Minute}},
		{name: "sqlite", cfg: store.Config{Type: store.TypeSQLite, Path: "/tmp/x.db"}},
		{name: "missing type", cfg: store.Config{}, wantErr: "store.type is required"},
		{name: "sqlite without path", cfg: store.Config{Type: store.TypeSQLite}, wantErr: "store.path is required"},
		{name: "unknown type", cfg: store.Config{Type: "redis"}, wantErr: "unknown type"},
		{name: "negative ttl", cfg: store.Config{Type: store.TypeMemory, TTL: -time.Second}, wantErr: "store.ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_DefaultsToMemory(t *testing.T) {
	s, err := store.New(store.Config{Type: store.TypeMemory}, nil)
	require.NoError(t, err)
	defer s.Close()

	mem, ok := s.(*store.MemoryStore)
	require.True(t, ok)
	assert.Equal(t, store.DefaultTTL, mem.TTL())
}

// =============================================================================
// SQLITE RESTART
// =============================================================================

func TestSQLiteStore_ReopenFailsUnfinishedTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path, time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, newRecord("queued", store.StateQueued)))
	require.NoError(t, s.Put(ctx, newRecord("running", store.StateRunning)))
	done := newRecord("done", store.StateSucceeded)
	done.StatusCode = 200
	done.Result = json.RawMessage(`{"ok":true}`)
	require.NoError(t, s.Put(ctx, done))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path, time.Minute, nil)
	require.NoError(t, err)
	defer s.Close()

	for _, handle := range []string{"queued", "running"} {
		got, ok, err := s.Get(ctx, handle)
		require.NoError(t, err)
		require.True(t, ok, handle)
		assert.Equal(t, store.StateFailed, got.State, handle)
		assert.Equal(t, 500, got.StatusCode, handle)
		assert.Equal(t, store.InterruptedMessage, got.Error, handle)
		assert.NotNil(t, got.CompletedAt, handle)
	}

	got, ok, err := s.Get(ctx, "done")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.StateSucceeded, got.State)
	assert.Equal(t, 200, got.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
}
