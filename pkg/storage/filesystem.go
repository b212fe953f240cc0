package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

const eventLogName = "events.jsonl"

// FileSystemStore persists events to an append-only JSON lines log under
// rootDir and serves reads from an in-memory index rebuilt on open.
type FileSystemStore struct {
	*MemoryStore

	rootDir string
	mu      sync.Mutex
	file    *os.File
}

// NewFileSystemStore opens (or creates) the event log in rootDir
func NewFileSystemStore(rootDir string) (*FileSystemStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	path := filepath.Join(rootDir, eventLogName)
	events, err := readEventLog(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	mem := NewMemoryStore()
	mem.restore(events)

	return &FileSystemStore{
		MemoryStore: mem,
		rootDir:     rootDir,
		file:        file,
	}, nil
}

// Insert implements EventWriter. The event is durable in the log before it
// becomes visible to readers.
func (s *FileSystemStore) Insert(ctx context.Context, event *telemetry.Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return "", ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	record := cloneEvent(event)
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return "", fmt.Errorf("failed to append event: %w", err)
	}

	event.ID = record.ID
	return s.MemoryStore.Insert(ctx, record)
}

// DeleteAll implements Admin by truncating the log
func (s *FileSystemStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, ErrClosed
	}

	if err := s.file.Truncate(0); err != nil {
		return 0, fmt.Errorf("failed to truncate event log: %w", err)
	}

	return s.MemoryStore.DeleteAll(ctx)
}

// HealthCheck verifies the root directory is still reachable
func (s *FileSystemStore) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(s.rootDir); err != nil {
		return fmt.Errorf("event log directory unavailable: %w", err)
	}
	return s.MemoryStore.HealthCheck(ctx)
}

// Close flushes and closes the event log
func (s *FileSystemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	_ = s.MemoryStore.Close()
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}

func readEventLog(path string) ([]*telemetry.Event, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer file.Close()

	var events []*telemetry.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var event telemetry.Event
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event on line %d: %w", line, err)
		}
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	return events, nil
}
