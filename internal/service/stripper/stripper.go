package stripper

import (
	"context"

	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/fsglob"
	"github.com/oshokin/app-release/internal/logger"
)

// StageName identifies this stage in errors and logs.
const StageName = "strip"

const (
	// sourcePattern selects non-compiled sources.
	sourcePattern = "**/*.ts"
	// vendoredPattern marks third-party dependency trees, which are left untouched.
	vendoredPattern = "**/node_modules/**"
)

// scriptPatterns are the files whose requires are rewritten.
//
//nolint:gochecknoglobals // Read-only list.
var scriptPatterns = []string{"**/*.js", "**/*.mjs", "**/*.cjs"}

// Result lists what one Strip call changed, as slash-separated paths relative to the staging root.
type Result struct {
	// RemovedSources are deleted source files.
	RemovedSources []string
	// Pruned are deleted development-only paths.
	Pruned []string
	// Rewritten are scripts whose workspace requires became relative paths.
	Rewritten []string
}

// Changed reports whether anything was modified.
func (r *Result) Changed() bool {
	return len(r.RemovedSources)+len(r.Pruned)+len(r.Rewritten) > 0
}

// Stripper removes development-only content from a staged tree.
type Stripper struct {
	cfg *config.Config
}

// New returns a Stripper configured by cfg.
func New(cfg *config.Config) *Stripper {
	return &Stripper{cfg: cfg}
}

// Strip deletes sources outside node_modules, prunes development-only paths and
// rewrites workspace requires into relative paths. Running it again on the same
// tree changes nothing.
func (s *Stripper) Strip(ctx context.Context, bc release.BuildContext) (*Result, error) {
	ctx = logger.WithKV(ctx, "stage", StageName)

	result := new(Result)

	removed, err := fsglob.Remove(bc.DistDir, []string{sourcePattern}, vendoredPattern)
	if err != nil {
		return result, release.NewStageError(StageName, bc.Platform, release.ErrStaging, err)
	}

	result.RemovedSources = removed
	logger.InfoKV(ctx, "Removed source files", "count", len(removed))

	pruned, err := fsglob.Remove(bc.DistDir, s.cfg.PrunePatterns)
	if err != nil {
		return result, release.NewStageError(StageName, bc.Platform, release.ErrStaging, err)
	}

	result.Pruned = pruned
	logger.InfoKV(ctx, "Pruned development paths", "paths", pruned)

	rewriter := requireRewriter{
		distDir:     bc.DistDir,
		packagesDir: s.cfg.PackagesDir,
		scope:       s.cfg.WorkspaceScope,
	}

	rewritten, err := rewriter.rewriteTree(scriptPatterns)
	if err != nil {
		return result, release.NewStageError(StageName, bc.Platform, release.ErrStaging, err)
	}

	result.Rewritten = rewritten
	logger.InfoKV(ctx, "Transformed symlink requires", "files", len(rewritten))

	return result, nil
}
