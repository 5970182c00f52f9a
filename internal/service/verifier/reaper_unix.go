//go:build !windows

package verifier

import (
	"errors"
	"os"
	"syscall"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/app-release/internal/command"
)

// terminateProcessGroup kills the processes still running in the process group
// led by pgid and returns their pids. Processes outside the group are left
// alone even when they share the executable name.
func terminateProcessGroup(pgid int) ([]int, error) {
	if pgid <= 0 {
		return nil, nil
	}

	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	thisProcessID := os.Getpid()
	members := make([]int, 0)

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		group, err := syscall.Getpgid(process.Pid())
		if err != nil || group != pgid {
			continue
		}

		members = append(members, process.Pid())
	}

	if len(members) == 0 {
		return nil, nil
	}

	if err = command.KillProcessGroup(pgid); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return nil, err
	}

	return members, nil
}
