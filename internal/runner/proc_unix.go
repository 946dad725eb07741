//go:build !windows

package runner

import "syscall"

// sysProcAttr starts the script in its own process group so cancellation
// reaches the processes it spawned.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func killProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
