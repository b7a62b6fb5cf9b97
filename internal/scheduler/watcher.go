package scheduler

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the fields catalog file and marks the scheduler dirty
// when it changes, so the next selection picks up the edit without
// stat-polling on every loop iteration.
type Watcher struct {
	sched *Scheduler
	path  string

	done    chan struct{}
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the scheduler's fields file.
func NewWatcher(sched *Scheduler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		sched:   sched,
		path:    sched.FieldsFile(),
		done:    make(chan struct{}),
		watcher: fw,
	}, nil
}

// Start begins watching. The parent directory is watched rather than the
// file itself so editors that replace-on-save keep being seen.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Debounce: editors fire several events per save.
	const debounce = 100 * time.Millisecond
	var pending bool
	var last time.Time
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				if pending {
					w.sched.MarkDirty()
				}
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = true
				last = time.Now()
			}

		case now, ok := <-ticker.C:
			if !ok {
				return
			}
			if pending && now.Sub(last) >= debounce {
				pending = false
				w.sched.MarkDirty()
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
