package promoter

import (
	"bytes"
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/logger"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

// StageName identifies this stage in errors and logs.
const StageName = "promote"

// DefaultChecksumFunction is used to fingerprint promoted artifacts.
const DefaultChecksumFunction crypto.Hash = crypto.SHA512

var (
	errHashUnavailable  = errors.New("hash function unavailable")
	errChecksumMismatch = errors.New("promoted file checksum does not match the source")
	errNotRegularFile   = errors.New("artifact is not a regular file")
)

// Promotion describes one promoted artifact.
type Promotion struct {
	// Source is the verified executable.
	Source string `yaml:"source"`
	// Target is where it was applied.
	Target string `yaml:"target"`
	// Checksum is the base64 SHA-512 of the artifact.
	Checksum string `yaml:"checksum"`
}

// Promoter copies verified executables into a release folder.
type Promoter struct {
	// dir is the release folder; empty disables promotion.
	dir string
}

// New returns a Promoter writing under dir. A relative dir is resolved against root.
func New(dir, root string) *Promoter {
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}

	return &Promoter{dir: dir}
}

// Enabled reports whether a release folder is configured.
func (p *Promoter) Enabled() bool {
	return p.dir != ""
}

// Promote applies executable to <dir>/<platform>/<name> atomically and checks
// the result against the source checksum. It returns nil when promotion is disabled.
func (p *Promoter) Promote(ctx context.Context, bc release.BuildContext, executable string) (*Promotion, error) {
	if !p.Enabled() {
		return nil, nil
	}

	ctx = logger.WithKV(ctx, "stage", StageName)

	promotion, err := p.promote(ctx, bc.Platform, executable)
	if err != nil {
		return nil, release.NewStageError(StageName, bc.Platform, release.ErrPromotion, err)
	}

	logger.InfoKV(ctx, "Promoted executable", "target", promotion.Target, "checksum", promotion.Checksum)

	return promotion, nil
}

func (p *Promoter) promote(ctx context.Context, platform release.PlatformID, executable string) (*Promotion, error) {
	info, err := os.Stat(executable)
	if err != nil {
		return nil, err
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", executable, errNotRegularFile)
	}

	data, err := os.ReadFile(filepath.Clean(executable))
	if err != nil {
		return nil, err
	}

	checksum, err := checksumOf(data)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(p.dir, string(platform), filepath.Base(executable))
	if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create release folder: %w", err)
	}

	if _, err = os.Stat(target); err != nil && os.IsNotExist(err) {
		var created *os.File

		if created, err = os.Create(target); err != nil {
			return nil, err
		}

		_ = created.Close()
	}

	logger.DebugKV(ctx, "Applying executable", "target", target)

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: info.Mode().Perm(),
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return nil, fmt.Errorf("apply %s: %w", target, err)
	}

	oldFileName := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".old")
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	if err = verifyChecksum(target, checksum); err != nil {
		return nil, err
	}

	return &Promotion{
		Source:   executable,
		Target:   target,
		Checksum: base64.StdEncoding.EncodeToString(checksum),
	}, nil
}

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	return checksumOf(contents)
}

func checksumOf(contents []byte) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

func verifyChecksum(path string, expected []byte) error {
	actual, err := GetFileChecksum(path)
	if err != nil {
		return err
	}

	if !bytes.Equal(actual, expected) {
		return fmt.Errorf("%s: %w", path, errChecksumMismatch)
	}

	return nil
}
