package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
)

// Repository defines persistence operations for the release report.
type Repository interface {
	// Path returns where the report is stored.
	Path() string
	Load(ctx context.Context) (*release.Report, error)
	Save(ctx context.Context, report *release.Report) error
}

// FileRepository persists the release report to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the YAML report.
	path string
	// mu protects concurrent access to the report file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the report file does not exist yet.
	ErrNotFound = errors.New("report not found")
	// errNilReport is returned when Save receives nothing to write.
	errNilReport = errors.New("report is nil")
)

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the report location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the report from disk.
func (r *FileRepository) Load(_ context.Context) (*release.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read report file: %w", err)
	}

	report := new(release.Report)
	if err = yaml.Unmarshal(contents, report); err != nil {
		return nil, fmt.Errorf("decode report file: %w", err)
	}

	return report, nil
}

// Save writes the report to disk, creating the parent folder when needed.
func (r *FileRepository) Save(_ context.Context, report *release.Report) error {
	if report == nil {
		return errNilReport
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create report folder: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	return nil
}
