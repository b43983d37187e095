package cmd

import "os"

// isStdoutTTY returns true if stdout is connected to a terminal.
func isStdoutTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// resolveColor decides whether to colorize output from the --no-color
// flag and TTY status.
func resolveColor(noColorFlag bool) bool {
	if noColorFlag {
		return false
	}
	return isStdoutTTY()
}
