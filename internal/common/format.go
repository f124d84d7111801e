package common

import (
	"fmt"
	"io"
	"strings"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

// Rule writes a line of char repeated width times.
func Rule(w io.Writer, char string, width int) {
	fmt.Fprintln(w, strings.Repeat(char, width))
}

// Header writes a title framed by "=" rules, preceded by a blank line.
func Header(w io.Writer, title string, width int) {
	fmt.Fprintln(w)
	Rule(w, "=", width)
	fmt.Fprintln(w, title)
	Rule(w, "=", width)
}

// Footer writes a closing message framed by "=" rules.
func Footer(w io.Writer, message string, width int) {
	fmt.Fprintln(w)
	Rule(w, "=", width)
	fmt.Fprintln(w, message)
	Rule(w, "=", width)
	fmt.Fprintln(w)
}

// Section opens a box-drawn group with a title and key/value lines.
func Section(w io.Writer, title string, width int, lines ...string) {
	fmt.Fprintf(w, "\n┌─ %s\n", title)
	for _, line := range lines {
		fmt.Fprintf(w, "│  %s\n", line)
	}
	fmt.Fprintln(w, "├"+strings.Repeat("─", width-2))
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// Abbreviate shortens long identifiers for table output.
func Abbreviate(id string, keep int) string {
	if id == "" {
		return "none"
	}
	if keep > 0 && len(id) > keep {
		return id[:keep] + "..."
	}
	return id
}
