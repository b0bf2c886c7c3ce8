package watch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/reach/pkg/config"
)

func newWatcher(t *testing.T, dir string, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir, config.DefaultConfig(), WithDebounce(debounce), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestNewWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		debounce time.Duration
		want     time.Duration
	}{
		{"default debounce", 0, DefaultDebounce},
		{"custom debounce", time.Second, time.Second},
		{"negative debounce defaults", -time.Second, DefaultDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWatcher(t, tmpDir, tt.debounce)
			if w.fsWatcher == nil {
				t.Error("fsWatcher should not be nil")
			}
			if w.path != tmpDir {
				t.Errorf("path = %v, want %v", w.path, tmpDir)
			}
			if w.pending == nil {
				t.Error("pending map should be initialized")
			}
			if w.debounce != tt.want {
				t.Errorf("debounce = %v, want %v", w.debounce, tt.want)
			}
		})
	}
}

func TestNewWatcherNilConfig(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()
	if w.config == nil {
		t.Error("config should default")
	}
}

func TestWatcher_handleEvent(t *testing.T) {
	tmpDir := t.TempDir()
	w := newWatcher(t, tmpDir, time.Second)

	tests := []struct {
		name string
		file string
		op   fsnotify.Op
		want bool
	}{
		{"rust write", "src/lib.rs", fsnotify.Write, true},
		{"python create", "app/models.py", fsnotify.Create, true},
		{"typescript removed", "web/api.ts", fsnotify.Remove, true},
		{"renamed", "web/old.js", fsnotify.Rename, true},
		{"chmod ignored", "src/main.rs", fsnotify.Chmod, false},
		{"unsupported language", "main.go", fsnotify.Write, false},
		{"excluded dir", "node_modules/x/index.js", fsnotify.Write, false},
		{"excluded pattern", "web/app.min.js", fsnotify.Write, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.handleEvent(fsnotify.Event{Name: filepath.Join(tmpDir, filepath.FromSlash(tt.file)), Op: tt.op})

			w.mu.Lock()
			_, got := w.pending[tt.file]
			w.mu.Unlock()
			if got != tt.want {
				t.Errorf("pending[%s] = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestWatcher_handleEventSkipsTestsWhenDisabled(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Analysis.IncludeTests = false
	w, err := NewWatcher(tmpDir, cfg, WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: filepath.Join(tmpDir, "tests", "test_models.py"), Op: fsnotify.Write})
	if len(w.pending) != 0 {
		t.Errorf("pending = %v, want none", w.pending)
	}
}

func TestWatcher_processPendingBatches(t *testing.T) {
	tmpDir := t.TempDir()
	w := newWatcher(t, tmpDir, 50*time.Millisecond)

	var got [][]string
	w.SetCallback(func(_ context.Context, changed []string) {
		got = append(got, changed)
	})

	w.mu.Lock()
	w.pending["src/b.rs"] = struct{}{}
	w.pending["src/a.rs"] = struct{}{}
	w.latest = time.Now().Add(-time.Second)
	w.mu.Unlock()

	w.processPending(context.Background())

	if len(got) != 1 {
		t.Fatalf("callback calls = %d, want 1", len(got))
	}
	if !slices.Equal(got[0], []string{"src/a.rs", "src/b.rs"}) {
		t.Errorf("changed = %v", got[0])
	}
	if len(w.pending) != 0 {
		t.Error("pending should be cleared after processing")
	}
}

func TestWatcher_processPendingNotQuiet(t *testing.T) {
	w := newWatcher(t, t.TempDir(), time.Hour)

	called := false
	w.SetCallback(func(context.Context, []string) { called = true })

	w.mu.Lock()
	w.pending["a.py"] = struct{}{}
	w.latest = time.Now()
	w.mu.Unlock()

	w.processPending(context.Background())

	if called {
		t.Error("callback should wait for the debounce period")
	}
	if _, ok := w.pending["a.py"]; !ok {
		t.Error("change should stay pending")
	}
}

func TestWatcher_processPendingNoCallback(t *testing.T) {
	w := newWatcher(t, t.TempDir(), 50*time.Millisecond)

	w.mu.Lock()
	w.pending["a.py"] = struct{}{}
	w.latest = time.Now().Add(-time.Second)
	w.mu.Unlock()

	w.processPending(context.Background())

	if len(w.pending) != 0 {
		t.Error("pending should be cleared even without callback")
	}
}

func TestWatcher_Debounce(t *testing.T) {
	tmpDir := t.TempDir()
	w := newWatcher(t, tmpDir, 200*time.Millisecond)

	var calls int32
	w.SetCallback(func(context.Context, []string) { atomic.AddInt32(&calls, 1) })

	testFile := filepath.Join(tmpDir, "lib.rs")
	for range 5 {
		w.handleEvent(fsnotify.Event{Name: testFile, Op: fsnotify.Write})
		w.processPending(context.Background())
		time.Sleep(10 * time.Millisecond)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("callback count during burst = %d, want 0", n)
	}

	time.Sleep(300 * time.Millisecond)
	w.processPending(context.Background())

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("callback count = %d, want 1 (debounced)", n)
	}
}

func TestWatcher_StartContext(t *testing.T) {
	w := newWatcher(t, t.TempDir(), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Error("Start() did not return after context cancellation")
	}
}

func TestWatcher_StartFileChange(t *testing.T) {
	tmpDir := t.TempDir()
	w := newWatcher(t, tmpDir, 50*time.Millisecond)

	var mu sync.Mutex
	var batches [][]string
	w.SetCallback(func(_ context.Context, changed []string) {
		mu.Lock()
		batches = append(batches, changed)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(tmpDir, "main.py"), []byte("def main():\n    pass\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(batches)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) == 0 {
		t.Fatal("callback should be called when a file is created")
	}
	if !slices.Contains(batches[0], "main.py") {
		t.Errorf("changed = %v, want main.py", batches[0])
	}
}

func TestWatcher_StartExcludedDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	for _, dir := range []string{"vendor", "src"} {
		if err := os.MkdirAll(filepath.Join(tmpDir, dir), 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
	}
	w := newWatcher(t, tmpDir, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	watched := w.WatchedDirs()
	sawSrc := false
	for _, path := range watched {
		switch filepath.Base(path) {
		case "vendor":
			t.Error("vendor directory should not be watched")
		case "src":
			sawSrc = true
		}
	}
	if !sawSrc {
		t.Errorf("src should be watched, got %v", watched)
	}
}

func TestWatcher_ConcurrentHandleEvent(t *testing.T) {
	tmpDir := t.TempDir()
	w := newWatcher(t, tmpDir, time.Second)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := filepath.Join(tmpDir, "src", string(rune('a'+i))+".rs")
			w.handleEvent(fsnotify.Event{Name: name, Op: fsnotify.Write})
		}()
	}
	wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) != 20 {
		t.Errorf("pending = %d, want 20", len(w.pending))
	}
}
