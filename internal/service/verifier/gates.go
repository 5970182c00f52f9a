package verifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/app-release/internal/command"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/logger"
)

// bootstrapFilename is the staged entry point that answers --version.
const bootstrapFilename = "index.js"

var (
	// errEmptyVersion indicates that the artifact printed nothing.
	errEmptyVersion = errors.New("artifact reported an empty version")
	// errUnexpectedVersion indicates that the artifact printed another version.
	errUnexpectedVersion = errors.New("artifact reported an unexpected version")
)

// VerifyVersion runs the bootstrap in dir with --version and compares its output to want.
func (v *Verifier) VerifyVersion(ctx context.Context, dir, want string) error {
	tool := v.cfg.Tools.Interpreter

	result, err := command.Check(ctx, v.runner, command.Spec{
		Name:    tool.Name,
		Args:    append(append([]string(nil), tool.Args...), bootstrapFilename, "--version"),
		Env:     tool.Env,
		Dir:     dir,
		Timeout: v.cfg.Timeouts.Version,
	})
	if err != nil {
		return err
	}

	if err = CheckVersionOutput(result.Stdout, want); err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}

	logger.InfoKV(ctx, "Version matches", "dir", dir, "version", want)

	return nil
}

// CheckVersionOutput compares command output, minus its trailing newline, to want.
func CheckVersionOutput(output, want string) error {
	got := strings.TrimRight(output, "\r\n")

	switch {
	case got == "":
		return errEmptyVersion
	case got != want:
		return fmt.Errorf("%w: got %q, want %q", errUnexpectedVersion, got, want)
	default:
		return nil
	}
}

// VerifyStaticAssets checks that every slash-separated asset exists under appDir.
func VerifyStaticAssets(appDir string, assets []string) error {
	missing := make([]string, 0)

	for _, asset := range assets {
		_, err := os.Stat(filepath.Join(appDir, filepath.FromSlash(asset)))

		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			missing = append(missing, asset)
		default:
			return fmt.Errorf("stat %s: %w", asset, err)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%s: %s", appDir, strings.Join(missing, ", "))
	}

	return nil
}

// VerifyIntegrity checks the code signature of zipDir on darwin and does nothing elsewhere.
func (v *Verifier) VerifyIntegrity(ctx context.Context, platform release.PlatformID, zipDir string) error {
	if platform != release.Darwin {
		logger.DebugKV(ctx, "Integrity check is not applicable", "platform", platform)

		return nil
	}

	tool := v.cfg.Tools.Gatekeeper

	_, err := command.Check(ctx, v.runner, command.Spec{
		Name:    tool.Name,
		Args:    append(append([]string(nil), tool.Args...), zipDir),
		Env:     tool.Env,
		Timeout: v.cfg.Timeouts.Command,
		Stream:  true,
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Code signature verified", "path", zipDir)

	return nil
}
