//go:build windows

package command

import "os/exec"

// setProcessGroup keeps the default cancellation, which kills the direct child.
// Output held by its children is released by the runner's WaitDelay.
func setProcessGroup(*exec.Cmd) {}
