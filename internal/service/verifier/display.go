package verifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/logger"
)

const (
	// defaultDisplayNumber is the X display served by the virtual display.
	defaultDisplayNumber = 99
	// defaultSocketDir is where X servers create their sockets.
	defaultSocketDir = "/tmp/.X11-unix"
	// displayReadyTimeout bounds the wait for the X socket.
	displayReadyTimeout = 10 * time.Second
	// displayPollInterval is the delay between socket checks.
	displayPollInterval = 50 * time.Millisecond
)

var (
	// errDisplayExited indicates that the X server stopped before it became ready.
	errDisplayExited = errors.New("virtual display exited before it was ready")
	// errDisplayNotReady indicates that the X socket did not appear in time.
	errDisplayNotReady = errors.New("virtual display did not become ready")
)

// VirtualDisplay is a headless display that programs can render into.
type VirtualDisplay interface {
	// Start launches the display and returns the environment pointing at it.
	Start(ctx context.Context) ([]string, error)
	// Stop shuts the display down.
	Stop() error
}

// XvfbDisplay runs an Xvfb server in the background.
type XvfbDisplay struct {
	tool      config.Tool
	number    int
	socketDir string

	cmd  *exec.Cmd
	done chan error
}

// NewXvfbDisplay returns a display started with tool, e.g. "Xvfb -screen 0 1280x1024x24".
func NewXvfbDisplay(tool config.Tool) *XvfbDisplay {
	return &XvfbDisplay{
		tool:      tool,
		number:    defaultDisplayNumber,
		socketDir: defaultSocketDir,
	}
}

// Start implements VirtualDisplay. It returns once the X socket exists.
func (d *XvfbDisplay) Start(ctx context.Context) ([]string, error) {
	display := fmt.Sprintf(":%d", d.number)

	cmd := exec.Command(d.tool.Name, append([]string{display}, d.tool.Args...)...) //nolint:gosec // Configured tool.
	if len(d.tool.Env) > 0 {
		cmd.Env = append(os.Environ(), d.tool.Env...)
	}

	logger.InfoKV(ctx, "Starting virtual display", "display", display, "program", d.tool.Name)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", d.tool.Name, err)
	}

	d.cmd = cmd
	d.done = make(chan error, 1)

	go func() {
		d.done <- cmd.Wait()
	}()

	if err := d.waitReady(ctx); err != nil {
		_ = d.Stop()

		return nil, err
	}

	return []string{"DISPLAY=" + display}, nil
}

func (d *XvfbDisplay) waitReady(ctx context.Context) error {
	socket := filepath.Join(d.socketDir, fmt.Sprintf("X%d", d.number))

	ticker := time.NewTicker(displayPollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(displayReadyTimeout)
	defer deadline.Stop()

	for {
		if _, err := os.Stat(socket); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-d.done:
			d.cmd = nil

			return fmt.Errorf("%w: %v", errDisplayExited, err)
		case <-deadline.C:
			return fmt.Errorf("%w: %s", errDisplayNotReady, socket)
		case <-ticker.C:
		}
	}
}

// Stop implements VirtualDisplay. Stopping a display that is not running is a no-op.
func (d *XvfbDisplay) Stop() error {
	if d.cmd == nil || d.cmd.Process == nil {
		return nil
	}

	err := d.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stop %s: %w", d.tool.Name, err)
	}

	<-d.done
	d.cmd = nil

	return nil
}

// withVirtualDisplay runs fn inside display. The display is stopped exactly
// once when fn returns, fails or panics.
func withVirtualDisplay(ctx context.Context, display VirtualDisplay, fn func(env []string) error) error {
	env, err := display.Start(ctx)
	if err != nil {
		return fmt.Errorf("start virtual display: %w", err)
	}

	defer func() {
		if stopErr := display.Stop(); stopErr != nil {
			logger.WarnKV(ctx, "Cannot stop virtual display", "error", stopErr)
		}
	}()

	return fn(env)
}
