// Package watcher provides file system watching utilities: it detects
// deletion of watched files (settings removed, data dir wiped) and content
// writes (crisis phrase list edited) and invokes the matching callback.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors a file for deletion and modification. It watches the
// parent directory since fsnotify cannot watch non-existent files.
type Watcher struct {
	targetPath string // The file to watch
	parentPath string // Parent directory (what we actually watch)
	onDelete   func() // Callback when target is deleted
	onChange   func() // Callback when target is written or created
	watcher    *fsnotify.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	debounce   time.Duration
}

// New creates a new Watcher for the given target path. Either callback may
// be nil when that event class is not interesting.
func New(targetPath string, onDelete, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		targetPath: targetPath,
		parentPath: filepath.Dir(targetPath),
		onDelete:   onDelete,
		onChange:   onChange,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		debounce:   100 * time.Millisecond,
	}, nil
}

// Start begins watching for file events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to add initial watch")
		// Continue anyway - we'll try to re-establish later
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

// addWatch adds the parent directory to the watch list.
func (w *Watcher) addWatch() error {
	if _, err := os.Stat(w.parentPath); os.IsNotExist(err) {
		return err
	}
	return w.watcher.Add(w.parentPath)
}

// watchLoop is the main event loop. Events are debounced per class so a
// burst of writes from an editor fires the callback once.
func (w *Watcher) watchLoop() {
	var (
		deleteTimer   *time.Timer
		changeTimer   *time.Timer
		pendingDelete bool
	)

	for {
		select {
		case <-w.ctx.Done():
			if deleteTimer != nil {
				deleteTimer.Stop()
			}
			if changeTimer != nil {
				changeTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			eventPath := filepath.Clean(event.Name)
			targetPath := filepath.Clean(w.targetPath)

			// Parent directory deleted: entire data dir removed.
			if eventPath == w.parentPath && event.Op&fsnotify.Remove != 0 {
				log.Info().Str("path", w.parentPath).Msg("Parent directory deleted")
				pendingDelete = true
				if deleteTimer != nil {
					deleteTimer.Stop()
				}
				deleteTimer = time.AfterFunc(w.debounce, w.handleDeletion)
				continue
			}

			if eventPath == targetPath && event.Op&fsnotify.Remove != 0 {
				log.Info().Str("path", w.targetPath).Msg("Target deleted")
				pendingDelete = true
				if deleteTimer != nil {
					deleteTimer.Stop()
				}
				deleteTimer = time.AfterFunc(w.debounce, w.handleDeletion)
				continue
			}

			// Parent directory recreated: re-establish watch.
			if eventPath == w.parentPath && event.Op&fsnotify.Create != 0 {
				log.Info().Str("path", w.parentPath).Msg("Parent directory recreated, re-establishing watch")
				_ = w.addWatch()
				continue
			}

			// Target written or (re)created.
			if eventPath == targetPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if pendingDelete && event.Op&fsnotify.Create != 0 {
					log.Info().Str("path", w.targetPath).Msg("Target recreated, cancelling deletion callback")
					pendingDelete = false
					if deleteTimer != nil {
						deleteTimer.Stop()
					}
				}
				if w.onChange != nil {
					if changeTimer != nil {
						changeTimer.Stop()
					}
					changeTimer = time.AfterFunc(w.debounce, w.handleChange)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// handleChange calls the onChange callback.
func (w *Watcher) handleChange() {
	log.Info().Str("path", w.targetPath).Msg("Target changed, triggering reload callback")
	if w.onChange != nil {
		w.onChange()
	}
}

// handleDeletion calls the onDelete callback and attempts to re-establish the watch.
func (w *Watcher) handleDeletion() {
	log.Info().Str("path", w.targetPath).Msg("Triggering deletion callback")

	if w.onDelete != nil {
		w.onDelete()
	}

	// Re-establish watch after a short delay (parent may have been recreated).
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := w.addWatch(); err != nil {
			log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to re-establish watch after deletion")
		} else {
			log.Info().Str("path", w.parentPath).Msg("Re-established watch after recreation")
		}
	}()
}
