package sizereport

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/oshokin/app-release/internal/command"
	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/logger"
)

const (
	// StageName identifies this stage in errors and logs.
	StageName = "size-report"
	// aggregateName is the measured folder itself, reported by du as its own row.
	aggregateName = "packages"
)

// errMalformedRow indicates a du output line that is not "<size>\t<path>".
var errMalformedRow = errors.New("malformed disk usage row")

// Reporter measures the size of every staged subpackage.
type Reporter struct {
	cfg    *config.Config
	runner command.Runner
}

// New returns a Reporter configured by cfg.
func New(cfg *config.Config, runner command.Runner) *Reporter {
	return &Reporter{
		cfg:    cfg,
		runner: runner,
	}
}

// Report measures <appDir>/packages one level deep and returns the subpackages
// ascending by size. It returns a nil report when the measuring tool is missing.
func (r *Reporter) Report(ctx context.Context, appDir string) (release.DiskUsageReport, error) {
	ctx = logger.WithKV(ctx, "stage", StageName)
	tool := r.cfg.Tools.DiskUsage

	if !r.runner.Available(tool.Name) {
		logger.WarnKV(ctx, "Disk usage tool is not available, skipping size report", "program", tool.Name)

		return nil, nil
	}

	target := filepath.Join(appDir, aggregateName)

	result, err := command.Check(ctx, r.runner, command.Spec{
		Name:    tool.Name,
		Args:    append(append([]string(nil), tool.Args...), target),
		Env:     tool.Env,
		Timeout: r.cfg.Timeouts.Command,
	})
	if err != nil {
		return nil, err
	}

	report, err := Parse(result.Stdout)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Package sizes\n"+Render(report))

	return report, nil
}

// Parse converts "<size>\t<path>" rows into a report, dropping the aggregate row.
func Parse(output string) (release.DiskUsageReport, error) {
	report := make(release.DiskUsageReport, 0)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		size, dir, found := strings.Cut(line, "\t")
		if !found {
			return nil, fmt.Errorf("%w: %q", errMalformedRow, line)
		}

		sizeKB, err := strconv.ParseFloat(strings.TrimSpace(size), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errMalformedRow, line, err)
		}

		name := path.Base(filepath.ToSlash(strings.TrimRight(dir, `/\`)))
		if name == aggregateName {
			continue
		}

		report = append(report, release.PackageSize{Name: name, SizeKB: sizeKB})
	}

	sort.SliceStable(report, func(i, j int) bool {
		if report[i].SizeKB != report[j].SizeKB {
			return report[i].SizeKB < report[j].SizeKB
		}

		return report[i].Name < report[j].Name
	})

	return report, nil
}

// Render formats report as a two-column table.
func Render(report release.DiskUsageReport) string {
	rows := make([][]string, 0, len(report))
	for _, entry := range report {
		rows = append(rows, []string{entry.Name, strconv.FormatFloat(entry.SizeKB, 'f', -1, 64)})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PACKAGE", "SIZE (KB)").
		Rows(rows...).
		String()
}
