//go:build !windows

package agent

import "syscall"

// detachSysProcAttr severs the child from the parent's session so it
// survives the parent exiting.
func detachSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
