package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

var ErrLocked = errors.New("another run is already in progress")

// Lock is a PID file held for the duration of a run.
type Lock struct {
	path string
}

// Acquire creates the lock file at path. A lock left behind by a process
// that no longer exists is taken over.
func Acquire(path string) (*Lock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lock file %s: %w", path, errors.Join(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
		}

		pid, alive := holder(path)
		if alive {
			return nil, fmt.Errorf("%w (pid %d, lock file %s)", ErrLocked, pid, path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock file %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, path)
}

// holder reads the pid in the lock file and reports whether it is running.
// An unreadable file counts as held.
func holder(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, !os.IsNotExist(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if pid == os.Getpid() {
		return pid, true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	return pid, proc.Signal(syscall.Signal(0)) == nil
}

func (l *Lock) Release() {
	_ = os.Remove(l.path)
}
