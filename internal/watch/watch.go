// Package watch reports dataset materialization progress while the
// generation step runs.
package watch

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 500 * time.Millisecond

// Progress counts files materialized under a directory tree and logs
// debounced progress lines. It is purely observational: it never gates or
// alters what the generation step does.
type Progress struct {
	root    string
	watcher *fsnotify.Watcher
	files   atomic.Uint64

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewProgress starts watching root. fsnotify is not recursive, so
// directories created underneath are added as they appear.
func NewProgress(root string) (*Progress, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: failed to create file watcher: %w", err)
	}

	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch: failed to watch %s: %w", root, err)
	}

	p := &Progress{
		root:    root,
		watcher: watcher,
		done:    make(chan struct{}),
	}

	go p.watch()

	return p, nil
}

// watch consumes fsnotify events until Close.
func (p *Progress) watch() {
	defer close(p.done)

	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				// Best effort: a directory may already be gone again,
				// and watching it is not worth failing over.
				if err := p.watcher.Add(event.Name); err != nil {
					slog.Debug("Failed to watch new entry", "path", event.Name, "error", err)
				}

				p.files.Add(1)
				p.scheduleReport()
			}

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}

			slog.Error("Watcher error", "error", err)
		}
	}
}

// scheduleReport logs the running count once events settle for a moment.
func (p *Progress) scheduleReport() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}

	p.timer = time.AfterFunc(debounce, func() {
		slog.Info("Dataset materializing", "path", p.root, "entries_created", p.files.Load())
	})
}

// FileCount returns the number of entries created under the watched tree
// so far.
func (p *Progress) FileCount() uint64 {
	return p.files.Load()
}

// Close stops the watcher.
func (p *Progress) Close() error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()

	err := p.watcher.Close()
	<-p.done
	return err
}
