package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewFileSystemStore(t *testing.T) {
	t.Run("creates store with new directory", func(t *testing.T) {
		rootDir := filepath.Join(t.TempDir(), "test-storage")

		store, err := NewFileSystemStore(rootDir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		defer store.Close()

		if store.rootDir != rootDir {
			t.Errorf("Expected rootDir %s, got %s", rootDir, store.rootDir)
		}

		if _, err := os.Stat(filepath.Join(rootDir, eventLogName)); os.IsNotExist(err) {
			t.Error("Event log should have been created")
		}
	})

	t.Run("rejects corrupt log", func(t *testing.T) {
		rootDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(rootDir, eventLogName), []byte("{not json\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := NewFileSystemStore(rootDir); err == nil {
			t.Error("Expected error for corrupt event log")
		}
	})
}

func TestFileSystemStore_Reopen(t *testing.T) {
	ctx := context.Background()
	rootDir := t.TempDir()

	store, err := NewFileSystemStore(rootDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	first := newEvent("s1", "install", "completed", 0)
	first.Metrics["foo"] = "bar"
	id, err := store.Insert(ctx, first)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := store.Insert(ctx, newEvent("s1", "deploy", "success", 5*time.Minute)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewFileSystemStore(rootDir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	events, err := reopened.Find(ctx, Query{Filter: Filter{SessionID: "s1"}})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].ID != id {
		t.Errorf("Expected id %s, got %s", id, events[0].ID)
	}
	if events[0].Metrics["foo"] != "bar" {
		t.Errorf("Expected metrics to survive reopen, got %v", events[0].Metrics)
	}
	if !events[1].IsDeploySuccess() {
		t.Error("Expected second event to be deploy/success")
	}
}

func TestFileSystemStore_ReopenKeepsNumbersExact(t *testing.T) {
	ctx := context.Background()
	rootDir := t.TempDir()

	store, err := NewFileSystemStore(rootDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	e := newEvent("s1", "install", "completed", 0)
	e.Metrics["big"] = json.Number("12345678901234567890")
	e.Metrics["n"] = json.Number("1")
	if _, err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewFileSystemStore(rootDir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	events, err := reopened.Find(ctx, Query{Filter: Filter{SessionID: "s1"}})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if got := events[0].Metrics["big"]; got != json.Number("12345678901234567890") {
		t.Errorf("Expected big metric to survive exactly, got %#v", got)
	}
	if got := events[0].Metrics["n"]; got != json.Number("1") {
		t.Errorf("Expected n as json.Number, got %#v", got)
	}
}

func TestFileSystemStore_DeleteAll(t *testing.T) {
	ctx := context.Background()
	rootDir := t.TempDir()

	store, err := NewFileSystemStore(rootDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	_, _ = store.Insert(ctx, newEvent("s1", "install", "completed", 0))

	n, err := store.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 deleted, got %d", n)
	}
	store.Close()

	reopened, err := NewFileSystemStore(rootDir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	count, _ := reopened.Count(ctx, Filter{})
	if count != 0 {
		t.Errorf("Expected empty store after DeleteAll, got %d", count)
	}
}

func TestFileSystemStore_Closed(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	store.Close()

	if _, err := store.Insert(context.Background(), newEvent("s1", "install", "completed", 0)); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	// idempotent
	if err := store.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}
