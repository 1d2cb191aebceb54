// Package etlerrors defines the sentinel error kinds shared across the
// relation dependency engine and the extraction engine.
//
// Each sentinel is wrapped with operation context via Wrap/Wrapf rather than
// being returned bare, so callers can still branch on kind with errors.Is
// while logs retain the failing relation or source.
package etlerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingQuery is returned when a relation has no SQL file but its
	// query_stmt is read.
	ErrMissingQuery = errors.New("missing query")

	// ErrDesignUnavailable is returned when a table design cannot be fetched
	// or parsed.
	ErrDesignUnavailable = errors.New("design unavailable")

	// ErrRequiredStateUnknown is a programmer error: is_required was read
	// before RequiredSelector ran.
	ErrRequiredStateUnknown = errors.New("required state unknown")

	// ErrCyclicDependency is fatal for the whole ordering run.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrMissingCSVFiles is raised by ManifestWriter when no success sentinel
	// or no data files are present outside dry-run.
	ErrMissingCSVFiles = errors.New("missing csv files")

	// ErrSqoopExecution is raised when the sqoop subprocess exits non-zero.
	ErrSqoopExecution = errors.New("sqoop execution failed")

	// ErrRuntime is the base kind caught by ExtractorBase's per-relation loop;
	// all the per-relation kinds above satisfy errors.Is(err, ErrRuntime) via
	// wrapping with Runtime().
	ErrRuntime = errors.New("etl runtime error")

	// ErrDataExtract is the fatal aggregation error raised at the end of a
	// run when one or more sources failed to complete.
	ErrDataExtract = errors.New("data extract failed")
)

// Wrap attaches an operation label to err via %w, preserving errors.Is checks
// against err's own sentinel chain.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Wrapf is like Wrap but accepts a format string for the operation label.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Runtime wraps err so that errors.Is(result, ErrRuntime) succeeds, marking
// it as a per-relation failure that ExtractorBase's extract_source loop may
// catch instead of letting propagate unconditionally.
func Runtime(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRuntime, err)
}

// IsRuntime reports whether err descends from ErrRuntime, i.e. whether it is
// a per-relation failure that the extraction loop is allowed to catch.
func IsRuntime(err error) bool {
	return errors.Is(err, ErrRuntime)
}
