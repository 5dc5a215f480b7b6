//go:build windows

package state

import "golang.org/x/sys/windows"

// flockLock takes an exclusive lock on fd via LockFileEx. Without the
// fail-immediately flag the call blocks until granted, matching the Unix
// flock semantics the store relies on.
func flockLock(fd uintptr) error {
	var ol windows.Overlapped
	return windows.LockFileEx(windows.Handle(fd), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &ol)
}

// flockUnlock drops the lock taken by flockLock.
func flockUnlock(fd uintptr) error {
	var ol windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(fd), 0, 1, 0, &ol)
}
