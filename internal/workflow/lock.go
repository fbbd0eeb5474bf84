package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when another run holds the artifacts root.
var ErrRunInProgress = errors.New("run in progress")

const lockFile = ".run.lock"

type lockInfo struct {
	RunID   string    `json:"run_id"`
	PID     int       `json:"pid"`
	Started time.Time `json:"started"`
}

// RunLock allows one run at a time per artifacts root, within the process
// and across processes.
type RunLock struct {
	mu         sync.Mutex
	path       string
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewRunLock creates a lock file in dir. A lock older than staleAfter is
// taken over; zero disables takeover.
func NewRunLock(dir string, staleAfter time.Duration, logger *zap.Logger) *RunLock {
	return &RunLock{path: filepath.Join(dir, lockFile), staleAfter: staleAfter, logger: logger}
}

// Acquire takes the lock for runID and returns the function releasing it.
func (l *RunLock) Acquire(runID string) (func(), error) {
	if !l.mu.TryLock() {
		return nil, errors.Wrap(ErrRunInProgress, "in this process")
	}

	err := l.create(runID)
	if errors.Is(err, os.ErrExist) {
		err = l.takeOver(runID)
	}
	if err != nil {
		l.mu.Unlock()

		return nil, err
	}

	return func() {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("unable to remove run lock", zap.String("path", l.path), zap.Error(err))
		}
		l.mu.Unlock()
	}, nil
}

func (l *RunLock) create(runID string) error {
	err := os.MkdirAll(filepath.Dir(l.path), 0o755)
	if err != nil {
		return errors.Wrap(err, "unable to create lock directory")
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err //nolint:wrapcheck // os.ErrExist is checked by the caller
	}
	err = json.NewEncoder(f).Encode(lockInfo{RunID: runID, PID: os.Getpid(), Started: time.Now().UTC()})
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	return errors.Wrap(err, "unable to write run lock")
}

func (l *RunLock) takeOver(runID string) error {
	held := l.holder()
	if l.staleAfter <= 0 || time.Since(held.Started) < l.staleAfter {
		return errors.Wrapf(ErrRunInProgress, "run %s started at %s", held.RunID, held.Started.Format(time.RFC3339))
	}

	l.logger.Warn("replacing stale run lock",
		zap.String("stale_run_id", held.RunID),
		zap.Time("started", held.Started),
		zap.String("run_id", runID),
	)
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "unable to remove stale run lock")
	}
	err = l.create(runID)
	if errors.Is(err, os.ErrExist) {
		return errors.Wrap(ErrRunInProgress, "lock taken concurrently")
	}

	return err
}

// holder reads the lock file. An unreadable lock is dated by its mtime.
func (l *RunLock) holder() lockInfo {
	var info lockInfo
	blob, err := os.ReadFile(l.path)
	if err == nil && json.Unmarshal(blob, &info) == nil && !info.Started.IsZero() {
		return info
	}
	if st, err := os.Stat(l.path); err == nil {
		info.Started = st.ModTime()
	}

	return info
}
