//go:build !windows

package state

import "syscall"

// flockLock takes an exclusive advisory lock on fd, blocking until it is
// granted. Unix backs this with flock(2).
func flockLock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX)
}

// flockUnlock drops the lock taken by flockLock.
func flockUnlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
