//go:build windows

package agent

import "syscall"

// detachSysProcAttr puts the child in its own process group so console
// signals to the parent do not reach it.
func detachSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
