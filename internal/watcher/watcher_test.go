package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newWatcher(t *testing.T, opts Options) *Watcher {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.Include == nil {
		opts.Include = []string{"*.rm"}
	}
	w, err := New(opts)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	return w
}

func TestHashFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "page.rm")
	content := []byte("test content for hashing")

	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	hash1, size1, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if size1 != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), size1)
	}
	if hash1 != HashBytes(content) {
		t.Error("HashFile and HashBytes disagree")
	}

	if err := os.WriteFile(testFile, []byte("different content"), 0600); err != nil {
		t.Fatalf("failed to modify test file: %v", err)
	}
	hash2, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("second HashFile failed: %v", err)
	}
	if hash1 == hash2 {
		t.Error("different content should produce different hash")
	}
}

func TestHashFileNotFound(t *testing.T) {
	_, _, err := HashFile("/nonexistent/file.rm")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestMatch(t *testing.T) {
	w := newWatcher(t, Options{Exclude: []string{".*", "*.tmp"}})

	tests := []struct {
		path string
		want bool
	}{
		{"/x/page.rm", true},
		{"/x/page.rm.tmp", false},
		{"/x/.page.rm", false},
		{"/x/page.pdf", false},
		{"/x/page.metadata", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := w.Match(tt.path); got != tt.want {
				t.Errorf("Match(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	all := newWatcher(t, Options{Include: []string{}})
	if !all.Match("/x/anything") {
		t.Error("empty include list should match every file")
	}
}

func TestWatcherStartTracksExisting(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "notebook")
	if err := os.Mkdir(sub, 0700); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		filepath.Join(dir, "a.rm"),
		filepath.Join(dir, "a.content"),
		filepath.Join(sub, "b.rm"),
	} {
		if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name      string
		recursive bool
		want      int
	}{
		{"flat", false, 1},
		{"recursive", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWatcher(t, Options{Paths: []string{dir}, Recursive: tt.recursive, Debounce: time.Hour})
			if err := w.Start(); err != nil {
				t.Fatalf("failed to start watcher: %v", err)
			}
			defer w.Stop()

			if got := w.TrackedFiles(); got != tt.want {
				t.Errorf("expected %d tracked files, got %d", tt.want, got)
			}
		})
	}
}

func TestWatcherEvents(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, Options{Paths: []string{dir}})
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("nope"), 0600); err != nil {
		t.Fatal(err)
	}
	testFile := filepath.Join(dir, "page.rm")
	content := []byte("test content")
	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Path != testFile {
			t.Errorf("expected path %s, got %s", testFile, event.Path)
		}
		if event.Size != int64(len(content)) {
			t.Errorf("expected size %d, got %d", len(content), event.Size)
		}
		if event.Hash != HashBytes(content) {
			t.Error("event hash does not match content")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWatcherDebounce(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, Options{Paths: []string{dir}, Debounce: time.Second})
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	testFile := filepath.Join(dir, "debounce.rm")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(testFile, []byte("v"+string(rune('0'+i))), 0600); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	eventCount := 0
	timeout := time.After(3 * time.Second)
	for {
		select {
		case event := <-w.Events():
			eventCount++
			if eventCount > 1 {
				t.Fatal("expected only one event due to debouncing")
			}
			if event.Hash != HashBytes([]byte("v4")) {
				t.Error("event should carry the final content")
			}
		case <-timeout:
			if eventCount != 1 {
				t.Errorf("expected 1 event, got %d", eventCount)
			}
			return
		}
	}
}

func TestWatcherUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, Options{Paths: []string{dir}})
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	testFile := filepath.Join(dir, "page.rm")
	write := func(s string) {
		if err := os.WriteFile(testFile, []byte(s), 0600); err != nil {
			t.Fatal(err)
		}
	}
	next := func() (Event, bool) {
		select {
		case e := <-w.Events():
			return e, true
		case <-time.After(1500 * time.Millisecond):
			return Event{}, false
		}
	}

	write("same")
	if _, ok := next(); !ok {
		t.Fatal("timeout waiting for first event")
	}

	write("same")
	if _, ok := next(); ok {
		t.Error("rewrite with identical content should not be reported")
	}

	write("changed")
	if e, ok := next(); !ok || e.Hash != HashBytes([]byte("changed")) {
		t.Error("changed content should be reported")
	}
}

func TestWatcherMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, Options{Paths: []string{dir}, MaxFileSize: 4})
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "big.rm"), []byte("too large"), 0600); err != nil {
		t.Fatal(err)
	}
	small := filepath.Join(dir, "small.rm")
	if err := os.WriteFile(small, []byte("ok"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-w.Events():
		if e.Path != small {
			t.Errorf("expected only %s, got %s", small, e.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWatcherNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, Options{Paths: []string{dir}, Recursive: true})
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	sub := filepath.Join(dir, "new-notebook")
	if err := os.Mkdir(sub, 0700); err != nil {
		t.Fatal(err)
	}
	// Give the event loop time to add the directory
	time.Sleep(200 * time.Millisecond)

	testFile := filepath.Join(sub, "page.rm")
	if err := os.WriteFile(testFile, []byte("nested"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-w.Events():
		if e.Path != testFile {
			t.Errorf("expected %s, got %s", testFile, e.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for nested event")
	}
}
