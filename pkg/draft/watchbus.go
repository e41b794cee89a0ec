package draft

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/killallgit/chatnote/pkg/logger"
)

const changeFileExt = ".json"

// WatchBus shares changes between processes through a directory. Each
// change is written atomically to a file named after its key, and every
// process watching the directory is notified of the new file.
type WatchBus struct {
	dir     string
	watcher *fsnotify.Watcher
	subs    subscribers
	done    chan struct{}
	closeMu sync.Once
}

// NewWatchBus watches dir, creating it if needed
func NewWatchBus(dir string) (*WatchBus, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bus directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	b := &WatchBus{
		dir:     dir,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go b.processEvents()
	return b, nil
}

// Publish writes the change to the bus directory
func (b *WatchBus) Publish(c Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, ".change-*")
	if err != nil {
		return fmt.Errorf("failed to stage change: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to stage change: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to stage change: %w", err)
	}

	if err := os.Rename(tmp.Name(), b.pathFor(c.Key)); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

func (b *WatchBus) Subscribe(fn func(Change)) func() {
	return b.subs.add(fn)
}

// Close stops watching the directory
func (b *WatchBus) Close() error {
	var err error
	b.closeMu.Do(func() {
		err = b.watcher.Close()
		<-b.done
	})
	return err
}

func (b *WatchBus) pathFor(key string) string {
	return filepath.Join(b.dir, url.PathEscape(key)+changeFileExt)
}

func (b *WatchBus) processEvents() {
	defer close(b.done)

	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, changeFileExt) {
				continue
			}
			b.deliver(event.Name)

		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("draft bus watcher error: %v", err)
		}
	}
}

func (b *WatchBus) deliver(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("draft bus could not read %s: %v", path, err)
		return
	}

	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		logger.Warn("draft bus ignoring malformed change %s: %v", path, err)
		return
	}
	b.subs.notify(c)
}
