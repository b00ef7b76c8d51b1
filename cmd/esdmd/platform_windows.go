//go:build windows
// +build windows

package main

import "fmt"

// dropPrivileges is a no-op on Windows: privilege restriction there
// goes through restricted tokens, not setuid/setgid, and no component
// in this daemon needs it badly enough to justify the Windows API
// surface.
func dropPrivileges(uid, gid int) error {
	return nil
}

// lockMemory is unavailable on Windows (would require VirtualLock plus
// the SE_LOCK_MEMORY_NAME privilege); callers treat its error as
// advisory, not fatal.
func lockMemory() error {
	return fmt.Errorf("memory locking not implemented on windows")
}
