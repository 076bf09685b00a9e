package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestDebouncerGroupsEvents(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "b.yaml"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "a.yaml"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "b.yaml"})

	select {
	case events := <-d.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.yaml", events[0].Path)
		assert.Equal(t, "b.yaml", events[1].Path)
		assert.Equal(t, EventTypeModified, events[1].Type, "last event per path wins")
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer did not flush")
	}
}

func TestFileWatcherDeliversChanges(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "build")
	require.NoError(t, os.MkdirAll(out, 0o755))

	watcher, err := NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(ExcludeDirFilter(out))
	watcher.AddFilter(IgnoreFilter([]string{"*.swp"}))

	var (
		mu       sync.Mutex
		received []ChangeEvent
	)
	done := make(chan struct{}, 1)
	watcher.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		mu.Lock()
		received = append(received, events...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})

	require.NoError(t, watcher.AddRecursive(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(out, "deployment.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kreate.konf.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kreate.konf"), []byte("app: {}"), 0o644))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, e := range received {
		assert.Equal(t, filepath.Join(dir, "kreate.konf"), e.Path)
	}
}

func TestIgnoreFilter(t *testing.T) {
	filter := IgnoreFilter([]string{".git", "*.swp", "*~"})

	tests := []struct {
		path     string
		expected bool
	}{
		{"konf/kreate.konf", true},
		{"konf/.git/HEAD", false},
		{".git", false},
		{"konf/.values.yaml.swp", false},
		{"konf/values.yaml~", false},
		{"/abs/konf/values.yaml", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, filter(tt.path))
		})
	}
}

func TestExcludeDirFilter(t *testing.T) {
	dir := t.TempDir()
	filter := ExcludeDirFilter(filepath.Join(dir, "build"))

	assert.False(t, filter(filepath.Join(dir, "build")))
	assert.False(t, filter(filepath.Join(dir, "build", "patches", "x.yaml")))
	assert.True(t, filter(filepath.Join(dir, "build-notes.txt")))
	assert.True(t, filter(filepath.Join(dir, "kreate.konf")))
}
