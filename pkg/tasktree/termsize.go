package tasktree

import (
	"os"

	"golang.org/x/term"
)

// termSize returns the current terminal width/height, falling back to
// (80, 20) on any failure (e.g. stdout is not a TTY) per spec §4.1.
func termSize() (width, height int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 80, 20
	}
	return w, h
}
