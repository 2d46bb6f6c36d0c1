package hosting

import "errors"

// Hosting provider errors.
var (
	// ErrNoPRFound is returned when no PR/MR exists for the given branch.
	ErrNoPRFound = errors.New("no pull request found for branch")

	// ErrNoToken is returned when a provider is constructed without an API token.
	ErrNoToken = errors.New("no hosting token configured")
)
