// Package watcher monitors directories for scene files that have finished
// changing.
//
// A file is reported once it has been left alone for the debounce interval.
// Writes that leave the content unchanged are not reported again.
package watcher

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"
)

// Event represents a file that is ready to be parsed.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Options configure a Watcher.
type Options struct {
	// Paths are files or directories to watch.
	Paths []string

	// Include are glob patterns matched against file names. A file must
	// match one of them. Empty matches every file.
	Include []string

	// Exclude are glob patterns of file names to ignore.
	Exclude []string

	// Debounce is how long a file must stay unchanged.
	Debounce time.Duration

	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64

	// Recursive watches subdirectories, including ones created later.
	Recursive bool
}

// Watcher monitors files and directories for changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	opts      Options

	// State tracking: path -> last modification time
	state   map[string]time.Time
	emitted map[string][32]byte
	stateMu sync.RWMutex

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a new file watcher.
func New(opts Options) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		opts:      opts,
		state:     make(map[string]time.Time),
		emitted:   make(map[string][32]byte),
		events:    make(chan Event, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of stable files.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching all configured paths. Files already present are
// reported once they are older than the debounce interval.
func (w *Watcher) Start() error {
	for _, path := range w.opts.Paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if err := w.addDir(absPath); err != nil {
				return err
			}
		} else {
			// Watch single file (by watching its directory)
			if err := w.fsWatcher.Add(filepath.Dir(absPath)); err != nil {
				return err
			}
			w.trackFile(absPath, info.ModTime())
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	return nil
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

// addDir watches dir and tracks the matching files in it, descending into
// subdirectories when recursive.
func (w *Watcher) addDir(dir string) error {
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if w.opts.Recursive {
				if err := w.addDir(path); err != nil {
					return err
				}
			}
			continue
		}
		if info, err := entry.Info(); err == nil {
			w.trackFile(path, info.ModTime())
		}
	}
	return nil
}

// Match reports whether a file name passes the include and exclude patterns.
func (w *Watcher) Match(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range w.opts.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return false
		}
	}
	if len(w.opts.Include) == 0 {
		return true
	}
	for _, pattern := range w.opts.Include {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// trackFile adds a file to state tracking.
func (w *Watcher) trackFile(path string, modTime time.Time) {
	if !w.Match(path) {
		return
	}
	w.stateMu.Lock()
	w.state[path] = modTime
	w.stateMu.Unlock()
}

// eventLoop handles fsnotify events.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.stateMu.Lock()
		delete(w.state, event.Name)
		delete(w.emitted, event.Name)
		w.stateMu.Unlock()
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && w.opts.Recursive {
			if err := w.addDir(event.Name); err != nil {
				w.sendError(err)
			}
		}
		return
	}

	w.trackFile(event.Name, time.Now())
}

// debounceLoop checks for stable files at a fraction of the debounce interval.
func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.checkStableFiles(now)
		}
	}
}

func (w *Watcher) tick() time.Duration {
	return min(max(w.opts.Debounce/2, 50*time.Millisecond), time.Second)
}

// stableFile represents a file ready for hashing.
type stableFile struct {
	path    string
	lastMod time.Time
}

// checkStableFiles finds files that haven't changed for the debounce
// interval. The lock is released while files are hashed.
func (w *Watcher) checkStableFiles(now time.Time) {
	threshold := now.Add(-w.opts.Debounce)

	var stableFiles []stableFile
	w.stateMu.RLock()
	for path, lastMod := range w.state {
		if lastMod.Before(threshold) {
			stableFiles = append(stableFiles, stableFile{path: path, lastMod: lastMod})
		}
	}
	w.stateMu.RUnlock()

	if len(stableFiles) == 0 {
		return
	}

	type hashResult struct {
		path    string
		lastMod time.Time
		hash    [32]byte
		size    int64
		skip    bool
		err     error
	}
	results := make([]hashResult, len(stableFiles))

	for i, sf := range stableFiles {
		r := hashResult{path: sf.path, lastMod: sf.lastMod}
		if info, err := os.Stat(sf.path); err != nil {
			r.err = err
		} else if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			r.skip = true
		} else {
			r.hash, r.size, r.err = HashFile(sf.path)
		}
		results[i] = r
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	for _, r := range results {
		currentLastMod, exists := w.state[r.path]
		if !exists || currentLastMod != r.lastMod {
			// Removed or modified during hashing; let it stabilize again
			continue
		}
		if r.err != nil || r.skip {
			delete(w.state, r.path)
			if r.err != nil {
				w.sendError(r.err)
			}
			continue
		}
		if prev, ok := w.emitted[r.path]; ok && prev == r.hash {
			delete(w.state, r.path)
			continue
		}

		event := Event{
			Path:      r.path,
			Hash:      r.hash,
			Size:      r.size,
			Timestamp: now,
		}

		select {
		case w.events <- event:
			delete(w.state, r.path)
			w.emitted[r.path] = r.hash
		default:
			// Event channel full, try again later
		}
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// HashFile computes the BLAKE2b-256 hash of a file using streaming.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, 0, err
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// HashBytes returns the BLAKE2b-256 hash of data, matching HashFile.
func HashBytes(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// WatchedPaths returns the list of paths being watched.
func (w *Watcher) WatchedPaths() []string {
	return w.opts.Paths
}

// TrackedFiles returns the current number of tracked files.
func (w *Watcher) TrackedFiles() int {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return len(w.state)
}
