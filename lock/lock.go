// Package lock implements the advisory, cross-process single-writer lock
// described in spec.md §4.9: exclusive creation of a well-known lock file,
// with a change-notification based wait for callers that want to block
// until the lock is released.
package lock

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/thatique/keep/verr"
)

// Handle is a held lock. It must be released; Release is safe to call more
// than once (later calls are no-ops) and from a defer.
type Handle struct {
	path     string
	released bool
}

// Release unlinks the lock file. A missing file is not an error — it means
// the lock was already released.
func (h *Handle) Release() error {
	if h == nil || h.released {
		return nil
	}
	h.released = true
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// pathFor returns the lock file path for name, rooted under dir.
func pathFor(dir, name string) string {
	sum := sha1.Sum([]byte(name))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".lock")
}

// Acquire makes a single, non-blocking attempt to take the lock for name
// under dir. It returns (nil, nil) if the lock is currently held by
// someone else.
func Acquire(dir, name string) (*Handle, error) {
	path := pathFor(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteString(time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &Handle{path: path}, nil
}

// Await blocks, watching for the lock file to be removed, until it manages
// to acquire the lock or ctx is canceled. It returns (nil, ctx.Err()) on
// cancellation.
func Await(ctx context.Context, dir, name string) (*Handle, error) {
	if h, err := Acquire(dir, name); err != nil || h != nil {
		return h, err
	}
	path := pathFor(dir, name)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return nil, err
	}

	for {
		if h, err := Acquire(dir, name); err != nil {
			return nil, err
		} else if h != nil {
			return h, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil, verr.Newf(verr.Internal, nil, "lock: watcher closed unexpectedly")
			}
			if ev.Name != path {
				continue
			}
			// Loop around and retry the acquire; any other event on
			// this path is a signal worth re-checking on.
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, verr.Newf(verr.Internal, nil, "lock: watcher closed unexpectedly")
			}
			return nil, err
		}
	}
}

// AwaitTimeout is Await with a bounded wait, as used by backend/files for
// its 30-second token-gated write window (§4.3).
func AwaitTimeout(ctx context.Context, dir, name string, timeout time.Duration) (*Handle, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	h, err := Await(tctx, dir, name)
	if err != nil && tctx.Err() != nil {
		return nil, verr.Newf(verr.Aborted, err, "lock: timed out waiting for %q", name)
	}
	return h, err
}
