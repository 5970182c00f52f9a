//go:build windows

package verifier

import (
	"errors"
	"os"

	"github.com/mitchellh/go-ps"
)

// terminateProcessGroup kills the direct children of pid that outlived it and
// returns their pids.
func terminateProcessGroup(pid int) ([]int, error) {
	if pid <= 0 {
		return nil, nil
	}

	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	killed := make([]int, 0)

	for _, process := range processList {
		if process.PPid() != pid {
			continue
		}

		runningProcess, err := os.FindProcess(process.Pid())
		if err != nil {
			return killed, err
		}

		if err = runningProcess.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return killed, err
		}

		killed = append(killed, process.Pid())
	}

	return killed, nil
}
