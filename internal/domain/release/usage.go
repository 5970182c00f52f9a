package release

// PackageSize is the measured disk usage of one staged subpackage.
type PackageSize struct {
	// Name is the subpackage directory name.
	Name string `yaml:"name"`
	// SizeKB is the size in kilobytes as reported by du -k.
	SizeKB float64 `yaml:"size_kb"`
}

// DiskUsageReport lists subpackages ascending by size, without the aggregate root row.
type DiskUsageReport []PackageSize
