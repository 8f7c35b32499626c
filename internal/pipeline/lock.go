package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrLockHeld is returned when another process holds the pipeline lock.
var ErrLockHeld = eris.New("pipeline: lock held by another process")

// Lock is an exclusive filesystem lock guarding the pipeline. O_EXCL creation
// makes acquisition atomic; the file body records the holder for operators.
type Lock struct {
	path string
}

// AcquireLock takes the lock at path or returns ErrLockHeld.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if holder, readErr := os.ReadFile(path); readErr == nil {
				zap.L().Warn("pipeline: lock already held",
					zap.String("path", path),
					zap.String("holder", string(holder)),
				)
			}
			return nil, ErrLockHeld
		}
		return nil, eris.Wrapf(err, "pipeline: create lock %s", path)
	}
	defer f.Close() //nolint:errcheck

	host, _ := os.Hostname()
	fmt.Fprintf(f, "pid=%d host=%s acquired=%s\n",
		os.Getpid(), host, time.Now().UTC().Format(time.RFC3339))

	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call once per acquired lock.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil {
		zap.L().Error("pipeline: release lock", zap.String("path", l.path), zap.Error(err))
	}
}
