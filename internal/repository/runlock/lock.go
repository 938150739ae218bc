package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/oneclick/internal/logger"
)

// ErrLocked is returned when a live process holds the lock.
var ErrLocked = errors.New("another run is in progress in this directory")

// ProcessFinder looks up a process by PID; it returns nil when none exists.
type ProcessFinder func(pid int) (ps.Process, error)

// Lock is a held run lock.
type Lock struct {
	repo   *FileRepository
	record Record
}

// Options tune Acquire.
type Options struct {
	// FindProcess defaults to ps.FindProcess.
	FindProcess ProcessFinder
	// Executable is the process name a live holder must have; defaults to the current executable.
	Executable string
}

// Acquire stores a record for the current process. A record whose process
// is gone, is this process, or runs a different executable is stale and
// replaced; any other record makes Acquire fail with ErrLocked.
func Acquire(ctx context.Context, repo *FileRepository, runID string, opts Options) (*Lock, error) {
	if opts.FindProcess == nil {
		opts.FindProcess = ps.FindProcess
	}

	if opts.Executable == "" {
		opts.Executable = currentExecutable()
	}

	record := Record{PID: os.Getpid(), RunID: runID, StartedAt: time.Now()}

	err := repo.Create(ctx, &record)
	if errors.Is(err, ErrExists) {
		logger.Info(ctx, "Found a run lock, checking whether it is stale")

		if err = reclaimStale(ctx, repo, opts); err != nil {
			return nil, err
		}

		err = repo.Create(ctx, &record)
	}

	if err != nil {
		if errors.Is(err, ErrExists) {
			return nil, ErrLocked
		}

		return nil, err
	}

	logger.DebugKV(ctx, "Run lock acquired", "path", repo.Path())

	return &Lock{repo: repo, record: record}, nil
}

// Release removes the lock file if it still belongs to this lock.
func (l *Lock) Release(ctx context.Context) error {
	current, err := l.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}

		return err
	}

	if current.PID != l.record.PID || current.RunID != l.record.RunID {
		logger.WarnKV(ctx, "Run lock was taken over, leaving it in place", "pid", current.PID)
		return nil
	}

	return l.repo.Remove(ctx)
}

// reclaimStale removes the stored record when its holder is not running.
func reclaimStale(ctx context.Context, repo *FileRepository, opts Options) error {
	holder, err := repo.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		logger.WarnKV(ctx, "Unreadable run lock, replacing it", "error", err)
		return repo.Remove(ctx)
	}

	alive, err := isHolderAlive(holder.PID, opts)
	if err != nil {
		return fmt.Errorf("check run lock holder: %w", err)
	}

	if alive {
		logger.WarnKV(ctx, "Run lock is held", "pid", holder.PID, "run_id", holder.RunID, "since", holder.StartedAt)
		return fmt.Errorf("%w (pid %d)", ErrLocked, holder.PID)
	}

	logger.InfoKV(ctx, "The run lock is stale, removing it", "pid", holder.PID)

	return repo.Remove(ctx)
}

func isHolderAlive(pid int, opts Options) (bool, error) {
	if pid <= 0 || pid == os.Getpid() {
		return false, nil
	}

	process, err := opts.FindProcess(pid)
	if err != nil {
		return false, err
	}

	if process == nil {
		return false, nil
	}

	return strings.EqualFold(process.Executable(), opts.Executable), nil
}

func currentExecutable() string {
	path, err := os.Executable()
	if err != nil {
		return ""
	}

	return filepath.Base(path)
}
