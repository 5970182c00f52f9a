package sizereport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/app-release/internal/command/commandtest"
	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		output   string
		expected release.DiskUsageReport
	}{
		{
			name:   "drops aggregate row and sorts ascending",
			output: "120\t/x/packages\n40\t/x/packages/electron\n15\t/x/packages/server\n",
			expected: release.DiskUsageReport{
				{Name: "server", SizeKB: 15},
				{Name: "electron", SizeKB: 40},
			},
		},
		{
			name:   "ties ordered by name",
			output: "8\t/x/packages/runner\n8\t/x/packages/https-proxy\n100\t/x/packages\n",
			expected: release.DiskUsageReport{
				{Name: "https-proxy", SizeKB: 8},
				{Name: "runner", SizeKB: 8},
			},
		},
		{
			name:     "empty output",
			output:   "",
			expected: release.DiskUsageReport{},
		},
		{
			name:   "trailing slash and carriage return",
			output: "3\t/x/packages/ts/\r\n9\t/x/packages/\r\n",
			expected: release.DiskUsageReport{
				{Name: "ts", SizeKB: 3},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			report, err := Parse(tt.output)
			require.NoError(t, err)
			require.Equal(t, tt.expected, report)
		})
	}
}

func TestParse_MalformedRow(t *testing.T) {
	t.Parallel()

	_, err := Parse("120 /x/packages\n")
	require.ErrorIs(t, err, errMalformedRow)

	_, err = Parse("lots\t/x/packages/server\n")
	require.ErrorIs(t, err, errMalformedRow)
}

func TestReport(t *testing.T) {
	t.Parallel()

	appDir := filepath.Join(t.TempDir(), "resources", "app")
	runner := commandtest.New().Stdout("du", "120\t/x/packages\n40\t/x/packages/electron\n15\t/x/packages/server\n", 0)

	report, err := New(config.Default(), runner).Report(context.Background(), appDir)
	require.NoError(t, err)

	require.Contains(t, report, release.PackageSize{Name: "electron", SizeKB: 40})

	calls := runner.CallsTo("du")
	require.Len(t, calls, 1)
	require.Equal(t, []string{"-k", "-d", "1", filepath.Join(appDir, "packages")}, calls[0].Args)
}

func TestReport_SkippedWithoutTool(t *testing.T) {
	t.Parallel()

	runner := commandtest.New().Missing("du")

	report, err := New(config.Default(), runner).Report(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Nil(t, report)
	require.Empty(t, runner.Calls())
}

func TestReport_CommandFailure(t *testing.T) {
	t.Parallel()

	runner := commandtest.New().Exit("du", 1, "du: cannot access")

	_, err := New(config.Default(), runner).Report(context.Background(), t.TempDir())
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	t.Parallel()

	out := Render(release.DiskUsageReport{{Name: "server", SizeKB: 15}, {Name: "electron", SizeKB: 40.5}})
	require.Contains(t, out, "PACKAGE")
	require.Contains(t, out, "server")
	require.Contains(t, out, "40.5")
}
