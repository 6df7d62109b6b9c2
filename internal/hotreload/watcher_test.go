package hotreload

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := NewWatcher(zap.NewNop(), 16)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

// waitForEvent reads events until one for path arrives.
func waitForEvent(t *testing.T, w *Watcher, path string) ChangeEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				t.Fatal("Event channel closed")
			}
			if ev.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for event on %s", path)
		}
	}
}

func TestNewWatcher(t *testing.T) {
	w := newTestWatcher(t)
	if w.IsWatching() {
		t.Error("Watcher should not be watching initially")
	}
}

func TestWatcher_AddRemove(t *testing.T) {
	w := newTestWatcher(t)
	testDir := t.TempDir()

	if err := w.Add(testDir, false); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	absPath, _ := filepath.Abs(testDir)
	if paths := w.Paths(); len(paths) != 1 || paths[0] != absPath {
		t.Errorf("Expected path '%s' to be added, got %v", absPath, paths)
	}

	if err := w.Remove(testDir); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if paths := w.Paths(); len(paths) != 0 {
		t.Errorf("Expected path to be removed, paths are now: %v", paths)
	}
}

func TestWatcher_Add_NonExistentPath(t *testing.T) {
	w := newTestWatcher(t)

	if err := w.Add(filepath.Join(t.TempDir(), "missing"), true); err == nil {
		t.Fatal("Expected error when adding non-existent path, but got nil")
	}
}

func TestWatcher_AddRecursive_SkipsHiddenDirs(t *testing.T) {
	w := newTestWatcher(t)
	root := t.TempDir()

	for _, dir := range []string{"erpnext/accounts/doctype", ".git/objects", "node_modules"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.Add(root, true); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	paths := w.Paths()
	for _, want := range []string{root, filepath.Join(root, "erpnext/accounts/doctype"), filepath.Join(root, "node_modules")} {
		if !slices.Contains(paths, want) {
			t.Errorf("Expected %s to be watched, got %v", want, paths)
		}
	}
	for _, p := range paths {
		if filepath.Base(p) == ".git" || filepath.Base(p) == "objects" {
			t.Errorf("Hidden directory %s should not be watched", p)
		}
	}
}

func TestWatcher_StartStop(t *testing.T) {
	w, err := NewWatcher(zap.NewNop(), 1)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !w.IsWatching() {
		t.Fatal("Watcher should be running after Start()")
	}

	// Calling Start again should be a no-op
	if err := w.Start(); err != nil {
		t.Fatalf("second Start() failed: %v", err)
	}

	w.Stop()
	if w.IsWatching() {
		t.Fatal("Watcher should not be running after Stop()")
	}

	// Calling Stop again should be a no-op
	w.Stop()

	if err := w.Start(); err == nil {
		t.Fatal("Expected Start() on a stopped watcher to fail")
	}
	if err := w.Add(t.TempDir(), false); err == nil {
		t.Fatal("Expected Add() on a stopped watcher to fail")
	}
}

func TestWatcher_EventFlow(t *testing.T) {
	w := newTestWatcher(t)
	testDir := t.TempDir()

	testFile := filepath.Join(testDir, "setup_taxes.json")
	if err := os.WriteFile(testFile, []byte("{}"), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if err := w.Add(testDir, false); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := os.WriteFile(testFile, []byte(`{"a": 1}`), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	ev := waitForEvent(t, w, testFile)
	if ev.Kind != EventModified && ev.Kind != EventCreated {
		t.Errorf("Expected modified event, got %s", ev.Kind)
	}
	if ev.Time.IsZero() {
		t.Error("Expected event time to be set")
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	w := newTestWatcher(t)
	root := t.TempDir()

	if err := w.Add(root, true); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	dir := filepath.Join(root, "accounts", "onboarding_step", "setup_taxes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	record := filepath.Join(dir, "setup_taxes.json")
	if err := os.WriteFile(record, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitForEvent(t, w, record)

	deadline := time.Now().Add(3 * time.Second)
	for !slices.Contains(w.Paths(), dir) {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %s to be watched, got %v", dir, w.Paths())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestShouldSkipEvent(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"/path/to/setup_taxes.json", false},
		{"/path/to/file.tmp", true},
		{"/path/to/.setup_taxes.json.swp", true},
		{"/path/to/file.swp", true},
		{"/path/to/.hiddenfile", true},
		{"/path/to/~tempfile", true},
		{"/path/to/setup_taxes.json~", true},
		{"/path/to/#setup_taxes.json#", true},
		{"regular.json", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			if got := shouldSkipEvent(tc.path); got != tc.expected {
				t.Errorf("shouldSkipEvent(%q) = %v; want %v", tc.path, got, tc.expected)
			}
		})
	}
}

func TestEventKind(t *testing.T) {
	testCases := []struct {
		op   fsnotify.Op
		kind EventKind
		ok   bool
	}{
		{fsnotify.Create, EventCreated, true},
		{fsnotify.Write, EventModified, true},
		{fsnotify.Create | fsnotify.Write, EventCreated, true},
		{fsnotify.Remove, EventDeleted, true},
		{fsnotify.Rename, EventMoved, true},
		{fsnotify.Chmod, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.op.String(), func(t *testing.T) {
			kind, ok := eventKind(tc.op)
			if kind != tc.kind || ok != tc.ok {
				t.Errorf("eventKind(%s) = (%q, %v); want (%q, %v)", tc.op, kind, ok, tc.kind, tc.ok)
			}
		})
	}
}
