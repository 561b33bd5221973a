//go:build !debug

// Package debug provides assertions for internal invariants of a worker,
// e.g. transfer alignment.  They are enabled with the debug build tag and
// compile to no-ops otherwise.
//
// Violations of the command protocol are not checked here, they are always
// reported as errors.
package debug

// Guard more complex assertions (i.e. anything that could panic) with `if
// debug.Enabled{...}`, otherwise they can't be removed in release builds.
const Enabled = false

// Assert panics if b is false.
func Assert(b bool, message string) {}

// Assertf is like Assert with a formatted message.
func Assertf(b bool, format string, args ...any) {}

// AssertAligned panics if v is not a multiple of align, which must be a
// power of two.
func AssertAligned(v uint32, align uint32, what string) {}
