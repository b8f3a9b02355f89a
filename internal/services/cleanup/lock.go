package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/models"
)

// LockStaleAfter is the age past which a lock file is considered abandoned
const LockStaleAfter = time.Hour

// runLock is the process-wide cleanup lock file
type runLock struct {
	path   string
	now    func() time.Time
	logger arbor.ILogger
}

// check fails with *models.LockContention when a fresh lock exists. A stale
// lock is removed when remove is set, otherwise only reported.
func (l *runLock) check(remove bool) error {
	info, err := os.Stat(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect lock file: %w", err)
	}

	age := l.now().Sub(info.ModTime())
	if age < LockStaleAfter {
		return &models.LockContention{LockFile: l.path, Age: age}
	}

	if !remove {
		l.logger.Warn().Str("lock", l.path).Dur("age", age).Msg("Stale lock file would be removed")
		return nil
	}
	l.logger.Warn().Str("lock", l.path).Dur("age", age).Msg("Removing stale lock file")
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale lock: %w", err)
	}
	return nil
}

// acquire creates the lock file exclusively. Losing the race to another
// process is reported as contention.
func (l *runLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return &models.LockContention{LockFile: l.path}
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	_, err = f.WriteString(strconv.Itoa(os.Getpid()) + " " + l.now().Format(time.RFC3339) + "\n")
	return err
}

func (l *runLock) release() {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn().Err(err).Str("lock", l.path).Msg("Failed to remove lock file")
		return
	}
	l.logger.Debug().Str("lock", l.path).Msg("Lock released")
}
