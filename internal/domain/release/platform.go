package release

import (
	"fmt"
	"strings"
)

// PlatformID is a canonical desktop platform name.
type PlatformID string

const (
	// Darwin is macOS; the only platform whose artifact is signed and gatekeeper-verified.
	Darwin PlatformID = "darwin"
	// Linux is any desktop Linux distribution.
	Linux PlatformID = "linux"
	// Windows is win32 in bundler terms, regardless of CPU word size.
	Windows PlatformID = "win32"
)

// Platforms returns the supported platform ids in a stable order.
func Platforms() []PlatformID {
	return []PlatformID{Darwin, Linux, Windows}
}

// Validate fails with ErrConfiguration unless p is a supported platform.
func (p PlatformID) Validate() error {
	for _, known := range Platforms() {
		if p == known {
			return nil
		}
	}

	return fmt.Errorf("%w: invalid build platform %q, valid choices: %s",
		ErrConfiguration, string(p), validChoices())
}

// String implements fmt.Stringer.
func (p PlatformID) String() string {
	return string(p)
}

// ParsePlatform converts user input into a PlatformID.
func ParsePlatform(s string) (PlatformID, error) {
	p := PlatformID(strings.TrimSpace(s))
	if err := p.Validate(); err != nil {
		return "", err
	}

	return p, nil
}

// HostPlatform maps a GOOS value to a PlatformID.
func HostPlatform(goos string) (PlatformID, error) {
	switch goos {
	case "darwin":
		return Darwin, nil
	case "linux":
		return Linux, nil
	case "windows":
		return Windows, nil
	default:
		return "", fmt.Errorf("%w: host os %q is not a supported build platform, valid choices: %s",
			ErrConfiguration, goos, validChoices())
	}
}

func validChoices() string {
	names := make([]string, 0, len(Platforms()))
	for _, p := range Platforms() {
		names = append(names, string(p))
	}

	return strings.Join(names, ", ")
}
