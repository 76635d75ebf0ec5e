// Package readysem implements a named, host-wide one-shot readiness latch
// ("wd_ready"). Go's standard library has no sem_open equivalent, so the
// latch is built on a named advisory file lock (github.com/gofrs/flock):
// whoever creates the latch holds the lock until it posts (unlocks); a
// waiter opens the same path without taking it and blocks acquiring the
// lock for itself, unblocking the instant the creator releases it.
//
// The two halves are intentionally not interchangeable. Create's lock can
// only be released by the same *Sem that took it: gofrs/flock tracks lock
// state per instance, so calling Lock again on an already-locked instance
// returns immediately instead of blocking, and calling Unlock on an
// instance that never itself locked the file is a no-op. A Sem therefore
// remembers which one of the two roles it was opened for and refuses the
// other.
package readysem

import (
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
)

// Sem is a named, host-wide one-shot readiness latch.
type Sem struct {
	path    string
	lock    *flock.Flock
	created bool

	once sync.Once
}

// Create opens (creating if necessary) the named latch and immediately
// takes it in the "not ready" (locked) state. The caller posts readiness
// with Post, on this same Sem, once its own setup completes.
func Create(name string) (*Sem, error) {
	path := backingPath(name)
	l := flock.New(path)
	if err := l.Lock(); err != nil {
		return nil, fmt.Errorf("readysem: create %s: %w", name, err)
	}
	return &Sem{path: path, lock: l, created: true}, nil
}

// Open attaches to an existing named latch without taking it, so the
// caller can Wait on it. It fails if no latch of that name exists.
func Open(name string) (*Sem, error) {
	path := backingPath(name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("readysem: open %s: %w", name, err)
	}
	return &Sem{path: path, lock: flock.New(path)}, nil
}

// Post signals readiness exactly once. Only valid on a Sem returned by
// Create: that is the instance actually holding the lock, and only the
// instance holding a lock can release it.
func (s *Sem) Post() error {
	if !s.created {
		return fmt.Errorf("readysem: Post called on a handle obtained via Open, not Create")
	}
	var err error
	s.once.Do(func() {
		err = s.lock.Unlock()
	})
	return err
}

// Wait blocks until the latch's creator Posts, then returns. Only valid on
// a Sem returned by Open: calling it on the Sem that created the latch
// would re-lock an already-locked instance, which gofrs/flock treats as an
// immediate no-op rather than a genuine wait.
func (s *Sem) Wait() error {
	if s.created {
		return fmt.Errorf("readysem: Wait called on the handle that created the latch, use a handle from Open")
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("readysem: wait: %w", err)
	}
	return s.lock.Unlock()
}

// Close releases this process's handle without removing the backing file.
func (s *Sem) Close() error {
	return s.lock.Close()
}

// Unlink removes the backing file. Safe to call from either role; a
// waiter elsewhere that is already inside Wait holds its own file
// descriptor and keeps working against it until that descriptor is closed.
func (s *Sem) Unlink() error {
	_ = s.lock.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("readysem: unlink: %w", err)
	}
	return nil
}

func backingPath(name string) string {
	return fmt.Sprintf("%s/%s.lock", os.TempDir(), name)
}
