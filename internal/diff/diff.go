// Package diff summarises how a text rewrite changed a node's lines.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

type Line struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Stats counts whole lines; a line edited in place is one removal plus one
// addition.
type Stats struct {
	LinesAdded   int `json:"linesAdded"`
	LinesRemoved int `json:"linesRemoved"`
}

func (s Stats) Changed() bool {
	return s.LinesAdded > 0 || s.LinesRemoved > 0
}

// Lines returns the line-level edit script from before to after.
func Lines(before, after string) []Line {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeChars, afterChars, false), lineArray)

	var lines []Line
	for _, d := range diffs {
		kind := LineContext
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = LineRemoved
		case diffmatchpatch.DiffInsert:
			kind = LineAdded
		}
		for _, text := range splitLines(d.Text) {
			lines = append(lines, Line{Type: kind, Text: text})
		}
	}
	return lines
}

func Count(before, after string) Stats {
	var stats Stats
	for _, line := range Lines(before, after) {
		switch line.Type {
		case LineAdded:
			stats.LinesAdded++
		case LineRemoved:
			stats.LinesRemoved++
		}
	}
	return stats
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
