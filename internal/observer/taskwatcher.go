// Package observer watches the on-disk task instance logs so verification
// can run automatically whenever a new log lands.
package observer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// taskLogSuffix identifies task instance logs inside the watched directory.
const taskLogSuffix = "-task-instances.jsonl"

// TaskLogCallback is called with the paths of task instance logs that
// changed since the last flush.
type TaskLogCallback func(changedFiles []string)

// TaskWatcher monitors the tasks directory for new or rewritten task
// instance logs.
type TaskWatcher struct {
	watcher  *fsnotify.Watcher
	callback TaskLogCallback
	debounce time.Duration

	// Debounce state
	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewTaskWatcher creates a watcher that reports changed task instance logs
// under tasksDir.
func NewTaskWatcher(tasksDir string, callback TaskLogCallback) (*TaskWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(tasksDir); err != nil {
		watcher.Close()
		return nil, err
	}

	tw := &TaskWatcher{
		watcher:  watcher,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
		pending:  make(map[string]struct{}),
	}

	return tw, nil
}

// Start begins watching for file changes
func (tw *TaskWatcher) Start(ctx context.Context) {
	ctx, tw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-tw.watcher.Events:
				if !ok {
					return
				}
				tw.handleEvent(event)
			case _, ok := <-tw.watcher.Errors:
				if !ok {
					return
				}
				// Log error but continue watching
			}
		}
	}()
}

// Stop stops watching for file changes
func (tw *TaskWatcher) Stop() {
	if tw.cancel != nil {
		tw.cancel()
	}
	tw.watcher.Close()
}

func (tw *TaskWatcher) handleEvent(event fsnotify.Event) {
	// Only care about task instance logs
	if !strings.HasSuffix(event.Name, taskLogSuffix) {
		return
	}

	// Only care about writes and creates
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.pending[event.Name] = struct{}{}

	// Reset or start debounce timer
	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.timer = time.AfterFunc(tw.debounce, tw.flush)
}

func (tw *TaskWatcher) flush() {
	tw.mu.Lock()
	// Copy pending state and clear
	pending := tw.pending
	tw.pending = make(map[string]struct{})
	tw.mu.Unlock()

	if tw.callback == nil || len(pending) == 0 {
		return
	}

	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	tw.callback(files)
}

// SetDebounce sets the debounce duration for batching file changes
func (tw *TaskWatcher) SetDebounce(d time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.debounce = d
}
