package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// locker serializes access to an archive. Goroutines of this process queue on
// a per-path semaphore, then the holder takes an advisory lock on
// `<archive>.lock` so other processes sharing the directory are serialized too.
type locker struct {
	mutex  sync.Mutex
	paths  map[string]*pathLock
	logger *slog.Logger
}

type pathLock struct {
	sem  chan struct{}
	refs int
}

func newLocker(logger *slog.Logger) *locker {
	return &locker{
		paths:  map[string]*pathLock{},
		logger: logger,
	}
}

func (l *locker) ref(filename string) *pathLock {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	p, exists := l.paths[filename]
	if !exists {
		p = &pathLock{sem: make(chan struct{}, 1)}
		l.paths[filename] = p
	}
	p.refs++
	return p
}

func (l *locker) unref(filename string, p *pathLock) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	p.refs--
	if p.refs == 0 {
		delete(l.paths, filename)
	}
}

// acquire blocks until the archive at filename is locked, or timeout elapses.
func (l *locker) acquire(ctx context.Context, filename string, timeout time.Duration) (release func(), err error) {

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p := l.ref(filename)

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(filename, p)
		return nil, lockError(filename, ctx.Err())
	}

	t0 := time.Now()
	f, err := lockFile(ctx, filename+LockSuffix)
	if err != nil {
		<-p.sem
		l.unref(filename, p)
		return nil, lockError(filename, err)
	}
	if waited := time.Since(t0); waited > 10*time.Millisecond {
		l.logger.Debug("archive lock contended", "archive", filename, "waited", waited)
	}

	once := sync.Once{}
	release = func() {
		once.Do(func() {
			err := unlockFile(f)
			if err != nil {
				l.logger.Warn("release archive lock", "archive", filename, "err", err)
			}
			<-p.sem
			l.unref(filename, p)
		})
	}

	return release, nil
}

func lockError(filename string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: '%s'", ErrLockTimeout, filename)
	}
	return fmt.Errorf("lock '%s': %w", filename, err)
}

// withLock runs f while holding the archive lock, releasing it on every exit path.
func (l *locker) withLock(ctx context.Context, filename string, timeout time.Duration, f func() error) error {
	release, err := l.acquire(ctx, filename, timeout)
	if err != nil {
		return err
	}
	defer release()
	return f()
}

func openLockFile(filename string) (*os.File, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}
