package logger

import (
	"github.com/mattn/go-isatty"
)

// isTerminal reports whether fd is attached to a terminal. Cygwin and
// msys pipes on Windows count as terminals.
func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
