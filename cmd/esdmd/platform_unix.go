//go:build darwin || linux
// +build darwin linux

package main

import (
	"fmt"
	"os"
	"syscall"
)

// dropPrivileges drops root privileges on Unix systems. A negative uid
// or gid leaves that half of the identity untouched (so `--gid` alone
// still works without forcing a uid flip).
func dropPrivileges(uid, gid int) error {
	if err := syscall.Setgroups([]int{}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}

	if gid >= 0 {
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("setgid: %w", err)
		}
	}
	if uid >= 0 {
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("setuid: %w", err)
		}
	}

	if uid >= 0 && (os.Getuid() == 0 || os.Geteuid() == 0) {
		return fmt.Errorf("failed to drop privileges")
	}
	return nil
}

// lockMemory locks all current and future process memory so seed
// material and DRNG state never reach swap.
func lockMemory() error {
	// MCL_CURRENT = 1, MCL_FUTURE = 2
	return syscall.Mlockall(1 | 2)
}
