package term

import "os"

// IsTerminal reports whether f seems to be attached to a terminal. Used to
// pick a human-readable log handler when running interactively.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
