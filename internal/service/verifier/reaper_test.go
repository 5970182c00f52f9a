//go:build !windows

package verifier

import (
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func startSleep(t *testing.T, ownGroup bool) *exec.Cmd {
	t.Helper()

	cmd := exec.Command("sleep", "30")
	if ownGroup {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	require.NoError(t, cmd.Start())

	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	return cmd
}

// TestTerminateProcessGroup_LeavesOtherProcesses kills only the group members,
// not a process outside the group running the same executable.
func TestTerminateProcessGroup_LeavesOtherProcesses(t *testing.T) {
	t.Parallel()

	member := startSleep(t, true)
	unrelated := startSleep(t, false)

	killed, err := terminateProcessGroup(member.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, []int{member.Process.Pid}, killed)

	var exitErr *exec.ExitError

	require.ErrorAs(t, member.Wait(), &exitErr)
	require.NoError(t, unrelated.Process.Signal(syscall.Signal(0)))
}

func TestTerminateProcessGroup_NoProcessGroup(t *testing.T) {
	t.Parallel()

	killed, err := terminateProcessGroup(0)
	require.NoError(t, err)
	require.Empty(t, killed)
}
