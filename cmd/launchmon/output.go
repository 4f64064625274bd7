package main

import (
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	humanize "github.com/dustin/go-humanize"
	isatty "github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
)

type outputRow struct {
	Key   string
	Value string
}

func shouldUsePrettyOutput(w io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	fd, ok := fileDescriptor(w)
	if !ok {
		return false
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func fileDescriptor(w io.Writer) (uintptr, bool) {
	type fdWriter interface {
		Fd() uintptr
	}
	f, ok := w.(fdWriter)
	if !ok {
		return 0, false
	}
	return f.Fd(), true
}

func printRows(w io.Writer, rows []outputRow) {
	if !shouldUsePrettyOutput(w) {
		for _, row := range rows {
			writef(w, "%s: %s\n", row.Key, row.Value)
		}
		return
	}

	maxKey := 0
	for _, row := range rows {
		if len(row.Key) > maxKey {
			maxKey = len(row.Key)
		}
	}
	for _, row := range rows {
		writef(w, "%s%-*s%s  %s\n", ansiDim, maxKey, row.Key, ansiReset, colorizeValue(row.Value))
	}
}

// printTable writes tab-separated lines when piped and aligned columns on a
// terminal. stateCol, when >= 0, is colorized.
func printTable(w io.Writer, header []string, rows [][]string, stateCol int) {
	if !shouldUsePrettyOutput(w) {
		for _, row := range rows {
			writeln(w, strings.Join(row, "\t"))
		}
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	writef(tw, "%s%s%s\n", ansiBold, strings.Join(header, "\t"), ansiReset)
	for _, row := range rows {
		cells := make([]string, len(row))
		copy(cells, row)
		if stateCol >= 0 && stateCol < len(cells) {
			cells[stateCol] = colorizeValue(cells[stateCol])
		}
		writeln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func printHeading(w io.Writer, title string) {
	if shouldUsePrettyOutput(w) {
		writef(w, "%s%s%s\n", ansiBold, title, ansiReset)
		return
	}
	writeln(w, title)
}

func printNotice(w io.Writer, message string) {
	if shouldUsePrettyOutput(w) {
		writef(w, "%s%s%s\n", ansiGreen, message, ansiReset)
		return
	}
	writeln(w, message)
}

// formatWhen renders t as RFC3339 when piped and relative on a terminal.
func formatWhen(w io.Writer, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	if shouldUsePrettyOutput(w) {
		return humanize.Time(t)
	}
	return t.UTC().Format(time.RFC3339)
}

func colorizeValue(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "true", "running", "loaded", "ok", "yes", "up":
		return ansiGreen + value + ansiReset
	case "false", "not_loaded", "not-loaded", "unavailable", "not-found", "failed", "error", "down":
		return ansiRed + value + ansiReset
	case "stopped", "skipped", "-", "unknown", "n/a":
		return ansiYellow + value + ansiReset
	default:
		return value
	}
}
