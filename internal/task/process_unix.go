//go:build !windows

package task

import (
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

// setProcessGroup puts the child in its own process group so termination
// reaches grandchildren too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the child's process group, escalating
// to SIGKILL after the kill delay if the group ignores it.
func terminateGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		return cmd.Process.Kill()
	}
	time.AfterFunc(killDelay, func() {
		_ = syscall.Kill(pgid, syscall.SIGKILL)
	})
	return nil
}

// peakRSS reads the child's maximum resident set size, best-effort.
func peakRSS(cmd *exec.Cmd) int64 {
	if cmd.ProcessState == nil {
		return 0
	}
	usage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	// Maxrss is kilobytes on Linux but bytes on darwin.
	if runtime.GOOS == "darwin" {
		return int64(usage.Maxrss)
	}
	return int64(usage.Maxrss) * 1024
}
