// Package simerr defines the simulator-level error kinds described in
// spec.md §7. Organism-level faults are never reported through this
// package — they are plain counters on the organism, not errors.
package simerr

import "github.com/pkg/errors"

// Sentinel kinds for simulator-level API misuse. Use errors.Cause (or
// errors.Is against these values) to recover the kind from a wrapped error.
var (
	// ErrConfigOutOfRange is returned by SetConfig when a patch field
	// falls outside the bounds spec.md §6 requires.
	ErrConfigOutOfRange = errors.New("simerr: config value out of range")

	// ErrNotInitialized is returned by Step/StepN/Snapshot/Organism when
	// called before Reset has seeded the soup.
	ErrNotInitialized = errors.New("simerr: simulator not initialized")

	// ErrSoupTooSmall is returned by New/Reset when the configured soup
	// size cannot hold the ancestor genome.
	ErrSoupTooSmall = errors.New("simerr: soup too small for ancestor genome")
)

// Wrap attaches context to a sentinel error without losing its identity
// under errors.Is, mirroring the errors.Wrapf usage in ngaro's vm package.
func Wrap(kind error, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}
