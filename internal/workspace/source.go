// Package workspace backs the editor with a source file on disk.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"pkt.systems/pslog"

	"github.com/standardbeagle/runbox/pkg/events"
)

const (
	DefaultFileMode = 0644
	lockRetry       = 100 * time.Millisecond
)

// Source is the file the editor loads from and saves to. Saves are atomic
// and serialized with other runbox processes through a lock file next to
// the source.
type Source struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	bus         *events.EventBus

	mu   sync.RWMutex
	text string

	watcher *fsnotify.Watcher
}

// Open loads path. A missing file is not an error; it is created on the
// first save.
func Open(path string, bus *events.EventBus) (*Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	s := &Source{
		path:        abs,
		lockPath:    filepath.Join(filepath.Dir(abs), "."+filepath.Base(abs)+".lock"),
		lockTimeout: 5 * time.Second,
		bus:         bus,
	}

	text, err := s.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	s.text = text
	return s, nil
}

func (s *Source) Path() string { return s.path }

// Text returns the content last loaded or saved.
func (s *Source) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Save writes text atomically: temp file in the same directory, fsync,
// rename over the source.
func (s *Source) Save(text string) error {
	// The text is updated before the lock is released so the watcher,
	// which reads under the same lock, sees the save as its own.
	err := s.withLock(func() error {
		if err := atomicWriteFile(s.path, []byte(text), DefaultFileMode); err != nil {
			return err
		}
		s.mu.Lock()
		s.text = text
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	return nil
}

func (s *Source) read() (string, error) {
	var data []byte
	err := s.withLock(func() error {
		var err error
		data, err = os.ReadFile(s.path)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// withLock runs fn while holding the source's lock file.
func (s *Source) withLock(fn func() error) error {
	fileLock := flock.New(s.lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock within timeout (%v)", s.lockTimeout)
	}
	defer func() { _ = fileLock.Unlock() }()

	return fn()
}

func atomicWriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Watch reloads the source when it changes on disk and publishes
// events.SourceReloaded with the new text. Changes that match the current
// text, such as our own saves, are not reported. Watch returns once the
// watcher is running; it stops when ctx is done or Close is called.
func (s *Source) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		watcher.Close()
		return errors.New("already watching")
	}
	s.watcher = watcher
	s.mu.Unlock()

	go s.watch(ctx, watcher)
	return nil
}

func (s *Source) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	log := pslog.Ctx(ctx).With("source", s.path)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.reload(); err != nil {
				log.Warn("reload failed", "err", err)
				s.bus.Publish(events.Event{
					Type: events.SystemMessage,
					Data: map[string]interface{}{
						"level":   "warning",
						"context": "source",
						"message": "reload failed: " + err.Error(),
					},
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watcher error", "err", err)
		}
	}
}

func (s *Source) reload() error {
	text, err := s.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	if text == s.text {
		s.mu.Unlock()
		return nil
	}
	s.text = text
	s.mu.Unlock()

	s.bus.Publish(events.Event{
		Type: events.SourceReloaded,
		Data: map[string]interface{}{
			"path": s.path,
			"text": text,
		},
	})
	return nil
}

// Close stops watching.
func (s *Source) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}
