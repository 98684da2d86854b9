package jobexec

import (
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
)

// killProcessTree terminates cmd's process: SIGTERM on Unix (no cascade —
// phase executors avoid shell wrappers for long-lived processes precisely
// so this is sufficient), `taskkill /pid <pid> /f /t` on Windows, which
// kills the whole tree (spec.md §4.4, §5 timeouts).
func killProcessTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		pid := strconv.Itoa(cmd.Process.Pid)
		_ = exec.Command("taskkill", "/pid", pid, "/f", "/t").Run()
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
}
