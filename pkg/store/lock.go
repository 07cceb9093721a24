package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"annotated/pkg/logger"
)

// acquireLock takes an advisory process lock next to the store file.
// Single-process queuing serializes writers inside one daemon; the lock
// file keeps a second daemon from mutating the same store concurrently.
// A lock whose owner pid no longer runs is taken over.
func (s *Store) acquireLock() error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create store lock: %w", err)
		}
		b, rerr := os.ReadFile(s.lockPath)
		if rerr == nil {
			pid, _ := strconv.Atoi(strings.TrimSpace(string(b)))
			if pid > 0 && pid != os.Getpid() && processAlive(pid) {
				return fmt.Errorf("store %s is locked by running pid %d", s.path, pid)
			}
		}
		logger.Warn("store_lock_stale", "path", s.lockPath)
		if err := os.Remove(s.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale store lock: %w", err)
		}
	}
	return fmt.Errorf("could not acquire store lock %s", s.lockPath)
}

func (s *Store) releaseLock() {
	_ = os.Remove(s.lockPath)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
