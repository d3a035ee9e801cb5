//go:build unix

package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	minLockBackoff = 2 * time.Millisecond
	maxLockBackoff = 100 * time.Millisecond
)

// lockFile takes an exclusive flock on filename. It tries without blocking
// first, then polls with exponential backoff until ctx is done.
func lockFile(ctx context.Context, filename string) (*os.File, error) {

	f, err := openLockFile(filename)
	if err != nil {
		return nil, err
	}

	backoff := minLockBackoff
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("flock: %w", err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxLockBackoff {
			backoff = maxLockBackoff
		}
	}
}

func unlockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	errClose := f.Close()
	if err != nil {
		return fmt.Errorf("flock unlock: %w", err)
	}
	return errClose
}
