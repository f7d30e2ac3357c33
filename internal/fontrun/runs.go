// Package fontrun decides which font each part of a text node keeps when
// the node's characters are replaced.
package fontrun

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"canvasbridge/engine/internal/doctree"
)

type Segment struct {
	Start int
	End   int
}

// Run is a font assignment recorded against the original text. Strict runs
// use Start/End directly; smart runs are re-anchored on Delimiter.
type Run struct {
	Start     int
	End       int
	Font      doctree.FontName
	Delimiter rune
}

// Range is a concrete [Start, End) assignment against the new text.
type Range struct {
	Start int
	End   int
	Font  doctree.FontName
}

// RangeFontFunc reports the font of [start, end) of the original text.
type RangeFontFunc func(ctx context.Context, start, end int) (doctree.FontName, bool, error)

// DelimiterSegments splits text[start:end] at delim. A segment closes at a
// delimiter only when it is non-empty; the delimiter itself is excluded.
func DelimiterSegments(text []rune, delim rune, start, end int) []Segment {
	var segs []Segment
	pending := start
	for i := start; i < end; i++ {
		if text[i] == delim && pending != i {
			segs = append(segs, Segment{Start: pending, End: i})
			pending = i + 1
		}
	}
	if pending < end {
		segs = append(segs, Segment{Start: pending, End: end})
	}
	return segs
}

// SmartRuns records one run per uniform line and, for mixed lines, one run
// per space separated word. Lines are queried concurrently, so the result is
// sorted by Start before it is returned.
func SmartRuns(ctx context.Context, text []rune, fontAt RangeFontFunc) ([]Run, error) {
	var (
		mu   sync.Mutex
		runs []Run
	)
	record := func(r Run) {
		mu.Lock()
		runs = append(runs, r)
		mu.Unlock()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, line := range DelimiterSegments(text, '\n', 0, len(text)) {
		g.Go(func() error {
			font, mixed, err := fontAt(gctx, line.Start, line.End)
			if err != nil {
				return err
			}
			if !mixed {
				record(Run{Start: line.Start, End: line.End, Font: font, Delimiter: '\n'})
				return nil
			}
			for _, word := range DelimiterSegments(text, ' ', line.Start, line.End) {
				font, mixed, err := fontAt(gctx, word.Start, word.End)
				if err != nil {
					return err
				}
				if mixed {
					font, _, err = fontAt(gctx, word.Start, word.Start+1)
					if err != nil {
						return err
					}
				}
				record(Run{Start: word.Start, End: word.End, Font: font, Delimiter: ' '})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Start < runs[j].Start })
	return runs, nil
}

// AnchorRuns maps smart runs onto newText. Each run extends from the cursor
// to the next occurrence of its delimiter (or the end of the text) and the
// cursor then skips that delimiter.
func AnchorRuns(runs []Run, newText []rune) []Range {
	var out []Range
	prev := 0
	for _, run := range runs {
		if prev >= len(newText) {
			break
		}
		end := indexRune(newText, run.Delimiter, prev)
		if end < 0 {
			end = len(newText)
		}
		if end > prev {
			out = append(out, Range{Start: prev, End: end, Font: run.Font})
		}
		prev = end + 1
	}
	return out
}

func indexRune(text []rune, r rune, from int) int {
	for i := from; i < len(text); i++ {
		if text[i] == r {
			return i
		}
	}
	return -1
}

// StrictRuns merges consecutive characters sharing a font into maximal runs.
func StrictRuns(ctx context.Context, length int, fontAt RangeFontFunc) ([]Run, error) {
	var runs []Run
	for i := 0; i < length; i++ {
		font, _, err := fontAt(ctx, i, i+1)
		if err != nil {
			return nil, err
		}
		if n := len(runs); n > 0 && runs[n-1].Font == font && runs[n-1].End == i {
			runs[n-1].End = i + 1
			continue
		}
		runs = append(runs, Run{Start: i, End: i + 1, Font: font})
	}
	return runs, nil
}

// PrevailingFont returns the font used by the most characters. Ties go to the
// font encountered first.
func PrevailingFont(ctx context.Context, length int, fontAt RangeFontFunc) (doctree.FontName, error) {
	counts := map[string]int{}
	var order []string
	for i := 0; i < length; i++ {
		font, _, err := fontAt(ctx, i, i+1)
		if err != nil {
			return doctree.FontName{}, err
		}
		key := font.Key()
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	if len(order) == 0 {
		return doctree.FontName{}, fmt.Errorf("no characters to sample")
	}
	best := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[best] {
			best = key
		}
	}
	return doctree.ParseFontKey(best), nil
}

// DistinctFonts dedupes run fonts by family::style, keeping first-seen order.
func DistinctFonts(runs []Run) []doctree.FontName {
	seen := map[string]bool{}
	var out []doctree.FontName
	for _, r := range runs {
		if seen[r.Font.Key()] {
			continue
		}
		seen[r.Font.Key()] = true
		out = append(out, r.Font)
	}
	return out
}
