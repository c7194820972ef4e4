package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrLockHeld 表示文件锁已被其他进程持有。
var ErrLockHeld = errors.New("platform: lock is held by another process")

const lockPollInterval = 50 * time.Millisecond

// FileLock 是跨进程的排他文件锁，同一实例不可重入。
type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewFileLock 创建以 path 为锁文件的 FileLock，锁文件在首次加锁时创建。
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock 等待直到获得锁，等待期间遵循 ctx。
func (l *FileLock) Lock(ctx context.Context) error {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.TryLock()
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryLock 尝试获得锁，被其他进程持有时返回 false。
func (l *FileLock) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return false, fmt.Errorf("platform: lock %s already held by this instance", l.path)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("platform: lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("platform: open lock %s: %w", l.path, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLockHeld) {
			return false, nil
		}
		return false, fmt.Errorf("platform: lock %s: %w", l.path, err)
	}
	l.file = f
	return true, nil
}

// Unlock 释放锁，未持有时不做任何事。
func (l *FileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	err := unlockFile(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("platform: unlock %s: %w", l.path, err)
	}
	return nil
}
