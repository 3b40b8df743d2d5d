package localstate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// InstanceLock guards a state directory so only one console instance mutates
// it at a time. Selection persistence assumes a single writer.
type InstanceLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
	mu         sync.Mutex
}

type LockConfig struct {
	Timeout  time.Duration
	Retry    time.Duration
	MaxRetry int
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		Timeout:  5 * time.Second,
		Retry:    200 * time.Millisecond,
		MaxRetry: 10,
	}
}

// AcquireLock takes the instance lock under dir, retrying per cfg.
func AcquireLock(dir string, cfg LockConfig) (*InstanceLock, error) {
	if cfg.Timeout <= 0 || cfg.Retry <= 0 || cfg.MaxRetry <= 0 {
		def := DefaultLockConfig()
		if cfg.Timeout <= 0 {
			cfg.Timeout = def.Timeout
		}
		if cfg.Retry <= 0 {
			cfg.Retry = def.Retry
		}
		if cfg.MaxRetry <= 0 {
			cfg.MaxRetry = def.MaxRetry
		}
	}

	lockPath := filepath.Join(dir, "console.lock")
	il := &InstanceLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := il.acquireWithRetry(ctx, cfg); err != nil {
		return nil, err
	}

	il.acquiredAt = time.Now()
	slog.Info("Instance lock acquired", "path", lockPath)
	return il, nil
}

func (il *InstanceLock) acquireWithRetry(ctx context.Context, cfg LockConfig) error {
	for i := 0; i < cfg.MaxRetry; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock acquisition cancelled: %w", ctx.Err())
		default:
			locked, err := il.fileLock.TryLock()
			if err != nil {
				return fmt.Errorf("failed to attempt lock: %w", err)
			}
			if locked {
				return nil
			}
			if i < cfg.MaxRetry-1 {
				time.Sleep(cfg.Retry)
			}
		}
	}

	return fmt.Errorf("state dir is locked by another instance (timeout after %v)", cfg.Timeout)
}

func (il *InstanceLock) Release() {
	il.mu.Lock()
	defer il.mu.Unlock()

	if il.fileLock == nil {
		return
	}

	if err := il.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release instance lock", "path", il.lockPath, "error", err)
	} else {
		slog.Info("Instance lock released",
			"path", il.lockPath,
			"held_duration_ms", time.Since(il.acquiredAt).Milliseconds(),
		)
	}
	il.fileLock = nil
}

func (il *InstanceLock) IsLocked() bool {
	il.mu.Lock()
	defer il.mu.Unlock()
	return il.fileLock != nil
}
