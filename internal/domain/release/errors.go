package release

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports an invalid platform or setting detected before any work starts.
	ErrConfiguration = errors.New("configuration error")
	// ErrPlatformMismatch reports a requested platform different from the host platform.
	ErrPlatformMismatch = fmt.Errorf("%w: platform mismatch", ErrConfiguration)
	// ErrStaging reports a failure while assembling or stripping the staging tree.
	ErrStaging = errors.New("staging failed")
	// ErrPackaging reports a bundler failure. The pipeline downgrades it to a warning.
	ErrPackaging = errors.New("packaging failed")
	// ErrVersionMismatch reports a built artifact whose reported version differs.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrStaticAssets reports expected static files missing from the packed app.
	ErrStaticAssets = errors.New("static assets missing")
	// ErrIntegrity reports a failed code signature verification.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrSmokeTest reports an artifact that fails to launch and exit cleanly.
	ErrSmokeTest = errors.New("smoke test failed")
	// ErrPromotion reports a failure while copying the verified executable to the release folder.
	ErrPromotion = errors.New("promotion failed")
	// ErrReport reports a failure while persisting the release report.
	ErrReport = errors.New("release report failed")
)

// StageError is a fatal pipeline failure carrying the stage, the platform and the cause.
type StageError struct {
	// Stage is the pipeline stage name, e.g. "stage" or "verify-integrity".
	Stage string
	// Platform is the platform being built.
	Platform PlatformID
	// Kind is one of the Err* sentinels in this package.
	Kind error
	// Err is the underlying subprocess or filesystem cause.
	Err error
}

// NewStageError wraps err as a failure of stage on platform.
func NewStageError(stage string, platform PlatformID, kind, err error) *StageError {
	return &StageError{
		Stage:    stage,
		Platform: platform,
		Kind:     kind,
		Err:      err,
	}
}

// Error implements error. The kind is not repeated when the cause already carries it.
func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stage %s (platform %s): %v", e.Stage, e.Platform, e.Kind)
	}

	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("stage %s (platform %s): %v", e.Stage, e.Platform, e.Err)
	}

	return fmt.Sprintf("stage %s (platform %s): %v: %v", e.Stage, e.Platform, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
