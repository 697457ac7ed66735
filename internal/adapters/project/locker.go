// Package project guards a project directory against concurrent transactions.
package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ProjectLocker = (*Locker)(nil)

// staleCheckInterval is how often a waiter checks whether the lock holder
// is still running.
const staleCheckInterval = time.Second

// Locker implements ports.ProjectLocker with an exclusive lock file plus an
// in-process semaphore per project root.
type Locker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocker creates a new Locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]chan struct{})}
}

func (l *Locker) slot(root string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[root]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[root] = s
	}
	return s
}

// Acquire takes the lock of root for owner, waiting until the current holder
// releases it or ctx ends. A lock whose holder process is gone is reclaimed.
func (l *Locker) Acquire(ctx context.Context, root, owner string) (func() error, error) {
	root = filepath.Clean(root)
	path := domain.ProjectLockPath(root)

	slot := l.slot(root)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, locked(path, "another transaction of this process", ctx.Err())
	}

	if err := l.createLockFile(ctx, path, owner); err != nil {
		<-slot
		return nil, err
	}

	var once sync.Once
	release := func() error {
		var err error
		once.Do(func() {
			defer func() { <-slot }()
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, iofs.ErrNotExist) {
				err = zerr.With(zerr.Wrap(rmErr, "failed to release project lock"), "path", path)
			}
		})
		return err
	}
	return release, nil
}

func (l *Locker) createLockFile(ctx context.Context, path, owner string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create project directory"), "path", dir)
	}

	for {
		//nolint:gosec // Path is derived from the project root
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, domain.PrivateFilePerm)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%s %d\n", owner, os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return zerr.With(zerr.Wrap(errors.Join(werr, cerr), "failed to write project lock"), "path", path)
			}
			return nil
		}
		if !errors.Is(err, iofs.ErrExist) {
			return zerr.With(zerr.Wrap(err, "failed to create project lock"), "path", path)
		}
		if reclaimStale(path) {
			continue
		}
		if err := waitForRemoval(ctx, path); err != nil {
			return err
		}
	}
}

// waitForRemoval blocks until path disappears, its holder dies or ctx ends.
func waitForRemoval(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return zerr.Wrap(err, "failed to watch project lock")
	}
	defer watcher.Close() //nolint:errcheck // Best effort close in defer

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to watch project lock"), "path", path)
	}

	// The holder may have released between the failed create and the watch.
	if _, err := os.Stat(path); errors.Is(err, iofs.ErrNotExist) {
		return nil
	}

	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return locked(path, holder(path), ctx.Err())
		case <-ticker.C:
			if stale(path) {
				return nil
			}
		case ev, ok := <-watcher.Events:
			if !ok {
				return locked(path, holder(path), nil)
			}
			if filepath.Clean(ev.Name) == path && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				return nil
			}
		case werr, ok := <-watcher.Errors:
			if ok && werr != nil {
				return zerr.With(zerr.Wrap(werr, "failed to watch project lock"), "path", path)
			}
		}
	}
}

// holderPID parses the PID written after the owner in a lock file.
func holderPID(data []byte) (int, bool) {
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// stale reports whether the lock at path names a process that is no longer
// running. Locks without a readable PID are never stale.
func stale(path string) bool {
	//nolint:gosec // Path is derived from the project root
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, ok := holderPID(data)
	return ok && !processAlive(pid)
}

// reclaimStale removes the lock at path when its holder is gone. The file is
// first renamed aside so that a lock taken over by another waiter in the
// meantime is put back instead of deleted.
func reclaimStale(path string) bool {
	//nolint:gosec // Path is derived from the project root
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Is(err, iofs.ErrNotExist)
	}
	pid, ok := holderPID(data)
	if !ok || processAlive(pid) {
		return false
	}

	aside := path + ".stale." + strconv.Itoa(os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		return errors.Is(err, iofs.ErrNotExist)
	}
	//nolint:gosec // Path is derived from the project root
	claimed, err := os.ReadFile(aside)
	if err == nil && !bytes.Equal(claimed, data) {
		_ = os.Link(aside, path)
	}
	_ = os.Remove(aside)
	return true
}

func holder(path string) string {
	//nolint:gosec // Path is derived from the project root
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(data))
}

func locked(path, holder string, cause error) error {
	err := zerr.With(zerr.With(zerr.Wrap(domain.ErrProjectLocked, "timed out waiting for project lock"), "path", path), "holder", holder)
	if cause != nil {
		return errors.Join(err, cause)
	}
	return err
}
