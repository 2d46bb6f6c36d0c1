// Package version carries build metadata stamped at link time.
package version

import "fmt"

// Set via -ldflags at build time:
//
//	-X github.com/randalmurphal/duckling/internal/version.Version=v0.2.0
//	-X github.com/randalmurphal/duckling/internal/version.Commit=abc1234
var (
	Version = "dev"
	Commit  = "unknown"
)

// String renders the line printed by `duckling version`.
func String() string {
	return fmt.Sprintf("duckling %s (%s)", Version, Commit)
}
