package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mmynk/settle/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "settle-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "nested", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("Get returns not found for missing key", func(t *testing.T) {
		_, found, err := store.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if found {
			t.Error("Expected missing key to be not found")
		}
	})

	t.Run("Set then Get round trips", func(t *testing.T) {
		if err := store.Set(ctx, storage.GroupsKey, `{"g1":{}}`); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		value, found, err := store.Get(ctx, storage.GroupsKey)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !found || value != `{"g1":{}}` {
			t.Errorf("Get = (%q, %v), want (%q, true)", value, found, `{"g1":{}}`)
		}
	})

	t.Run("Set overwrites", func(t *testing.T) {
		store.Set(ctx, "k", "one")
		store.Set(ctx, "k", "two")
		value, _, _ := store.Get(ctx, "k")
		if value != "two" {
			t.Errorf("Expected overwritten value 'two', got %q", value)
		}
	})

	t.Run("Update writes returned values", func(t *testing.T) {
		store.Set(ctx, "a", "1")
		err := store.Update(ctx, []string{"a", "b"}, func(current map[string]string) (map[string]string, error) {
			if current["a"] != "1" {
				t.Errorf("Expected current a=1, got %q", current["a"])
			}
			if _, ok := current["b"]; ok {
				t.Error("Expected b to be absent")
			}
			return map[string]string{"a": "2", "b": "3"}, nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		a, _, _ := store.Get(ctx, "a")
		b, _, _ := store.Get(ctx, "b")
		if a != "2" || b != "3" {
			t.Errorf("Expected a=2 b=3, got a=%s b=%s", a, b)
		}
	})

	t.Run("Update error rolls back", func(t *testing.T) {
		store.Set(ctx, "c", "keep")
		boom := errors.New("boom")
		err := store.Update(ctx, []string{"c"}, func(map[string]string) (map[string]string, error) {
			return nil, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Expected boom, got %v", err)
		}
		c, _, _ := store.Get(ctx, "c")
		if c != "keep" {
			t.Errorf("Expected c to be unchanged, got %q", c)
		}
	})
}

func TestSQLiteStore_UpdateSerializesWriters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.Set(ctx, "counter", "")

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, []string{"counter"}, func(current map[string]string) (map[string]string, error) {
				return map[string]string{"counter": current["counter"] + "x"}, nil
			})
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	value, _, _ := store.Get(ctx, "counter")
	if len(value) != writers {
		t.Errorf("Expected %d increments, got %d (lost updates)", writers, len(value))
	}
}
