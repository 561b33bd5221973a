//go:build debug

package debug

import "fmt"

// Guard more complex assertions (i.e. anything that could panic) with `if
// debug.Enabled{...}`, otherwise they can't be removed in release builds.
const Enabled = true

func Assert(b bool, message string) {
	if !b {
		panic("assertion failed: " + message)
	}
}

func Assertf(b bool, format string, args ...any) {
	if !b {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}

func AssertAligned(v uint32, align uint32, what string) {
	if v&(align-1) != 0 {
		panic(fmt.Sprintf("assertion failed: %s 0x%x not aligned to %d", what, v, align))
	}
}
