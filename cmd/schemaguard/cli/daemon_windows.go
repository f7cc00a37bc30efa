//go:build windows

package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// setSysProcAttr is a no-op on Windows. Run the server under a service
// wrapper such as NSSM for long-lived deployments.
func setSysProcAttr(cmd *exec.Cmd) {}

// isProcessRunning asks tasklist whether pid exists. os.Process.Signal only
// supports Kill on Windows, so it cannot be used as a probe.
func isProcessRunning(pid int) bool {
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), fmt.Sprintf(" %d ", pid))
}

// stopProcess kills the process. Windows has no SIGTERM, so the server
// does not drain connections.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
