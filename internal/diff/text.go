package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line is one line of a view diff.
type Line struct {
	Content string
	Type    LineType
}

// ViewLines computes a line diff between two serialized views, for display.
// It uses a line-level reduction so each fact stays on one line.
func ViewLines(prev, cur []string) []Line {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	a, b, lineArray := dmp.DiffLinesToChars(joinLines(prev), joinLines(cur))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out []Line
	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		typ := LineContext
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			typ = LineAdded
		case diffmatchpatch.DiffDelete:
			typ = LineRemoved
		}
		for _, l := range lines {
			out = append(out, Line{Content: l, Type: typ})
		}
	}
	return out
}

// FormatLines renders lines with "+ ", "- " and "  " prefixes.
func FormatLines(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			sb.WriteString("+ ")
		case LineRemoved:
			sb.WriteString("- ")
		default:
			sb.WriteString("  ")
		}
		sb.WriteString(l.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func joinLines(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return strings.Join(items, "\n") + "\n"
}
