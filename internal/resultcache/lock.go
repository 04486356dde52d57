package resultcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/fingerprint"
)

// lockRetryDelay is how often a blocked Lock call retries.
const lockRetryDelay = 250 * time.Millisecond

// ErrLockTimeout reports that another run held the fingerprint lock for the
// whole wait.
var ErrLockTimeout = errors.New("resultcache: timed out waiting for fingerprint lock")

// Lock is a held per-fingerprint in-flight lock.
type Lock struct {
	lock *flock.Flock
}

// Release unlocks; it is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Lock blocks until the in-flight lock for fp is held, ctx ends or timeout
// elapses. A zero timeout waits only on ctx.
func (c *Cache) Lock(ctx context.Context, fp string, timeout time.Duration) (*Lock, error) {
	if c == nil {
		return &Lock{}, nil
	}
	if !fingerprint.Valid(fp) {
		return nil, ErrInvalidKey
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return nil, fmt.Errorf("resultcache: ensure cache dir: %w", err)
	}
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	fl := flock.New(c.lockPath(fp))
	ok, err := fl.TryLockContext(waitCtx, lockRetryDelay)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("resultcache: lock %s: %w", filepath.Base(fl.Path()), err)
	}
	if !ok {
		return nil, ErrLockTimeout
	}
	return &Lock{lock: fl}, nil
}

func (c *Cache) lockPath(fp string) string {
	return filepath.Join(c.root, fp+lockSuffix)
}
