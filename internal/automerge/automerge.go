// Package automerge combines two edited versions of a file against their
// common base, line by line.
package automerge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultMarkerSize is the width of conflict markers.
const DefaultMarkerSize = 7

// Input is one three-way merge request.
type Input struct {
	Base   []byte
	Ours   []byte
	Theirs []byte

	OursLabel   string
	TheirsLabel string
}

// Result is the merged output. When Conflicted is set, Data holds the best
// effort result: conflict markers for text, our side for binary content.
type Result struct {
	Data       []byte
	Conflicted bool
	Conflicts  int
	Binary     bool
}

// Merger merges file content.
type Merger interface {
	Merge(in Input) (Result, error)
}

// LineMerger is a diff3 style merger over lines.
type LineMerger struct {
	MarkerSize int
	dmp        *diffmatchpatch.DiffMatchPatch
}

// NewLineMerger creates a LineMerger. A markerSize below 1 uses the default.
func NewLineMerger(markerSize int) *LineMerger {
	if markerSize < 1 {
		markerSize = DefaultMarkerSize
	}
	return &LineMerger{MarkerSize: markerSize, dmp: diffmatchpatch.New()}
}

// Merge implements Merger.
func (m *LineMerger) Merge(in Input) (Result, error) {
	switch {
	case bytes.Equal(in.Ours, in.Theirs):
		return Result{Data: in.Ours}, nil
	case bytes.Equal(in.Base, in.Ours):
		return Result{Data: in.Theirs}, nil
	case bytes.Equal(in.Base, in.Theirs):
		return Result{Data: in.Ours}, nil
	}

	if isBinary(in.Base) || isBinary(in.Ours) || isBinary(in.Theirs) {
		return Result{Data: in.Ours, Conflicted: true, Conflicts: 1, Binary: true}, nil
	}

	base := splitLines(string(in.Base))
	ours := m.hunks(string(in.Base), string(in.Ours))
	theirs := m.hunks(string(in.Base), string(in.Theirs))

	var out strings.Builder
	conflicts := 0
	pos := 0
	i, j := 0, 0
	for i < len(ours) || j < len(theirs) {
		var groupOurs, groupTheirs []hunk
		start, end := -1, -1

		take := func(h hunk, mine bool) {
			if start == -1 || h.start < start {
				start = h.start
			}
			if h.end > end {
				end = h.end
			}
			if mine {
				groupOurs = append(groupOurs, h)
			} else {
				groupTheirs = append(groupTheirs, h)
			}
		}

		if j >= len(theirs) || (i < len(ours) && ours[i].start <= theirs[j].start) {
			take(ours[i], true)
			i++
		} else {
			take(theirs[j], false)
			j++
		}
	absorb:
		for {
			switch {
			case i < len(ours) && ours[i].start <= end:
				take(ours[i], true)
				i++
			case j < len(theirs) && theirs[j].start <= end:
				take(theirs[j], false)
				j++
			default:
				break absorb
			}
		}

		writeLines(&out, base[pos:start])
		pos = end

		switch {
		case len(groupTheirs) == 0:
			writeLines(&out, apply(base, start, end, groupOurs))
		case len(groupOurs) == 0:
			writeLines(&out, apply(base, start, end, groupTheirs))
		default:
			left := apply(base, start, end, groupOurs)
			right := apply(base, start, end, groupTheirs)
			if equalLines(left, right) {
				writeLines(&out, left)
				continue
			}
			conflicts++
			m.writeConflict(&out, in, left, right)
		}
	}
	writeLines(&out, base[pos:])

	return Result{Data: []byte(out.String()), Conflicted: conflicts > 0, Conflicts: conflicts}, nil
}

func (m *LineMerger) writeConflict(out *strings.Builder, in Input, left, right []string) {
	marker := func(ch byte, label string) {
		out.WriteString(strings.Repeat(string(ch), m.MarkerSize))
		if label != "" {
			out.WriteByte(' ')
			out.WriteString(label)
		}
		out.WriteByte('\n')
	}
	body := func(lines []string) {
		for _, l := range lines {
			out.WriteString(l)
			if !strings.HasSuffix(l, "\n") {
				out.WriteByte('\n')
			}
		}
	}

	marker('<', orDefault(in.OursLabel, "ours"))
	body(left)
	marker('=', "")
	body(right)
	marker('>', orDefault(in.TheirsLabel, "theirs"))
}

// hunk replaces base lines [start, end) with lines.
type hunk struct {
	start int
	end   int
	lines []string
}

func (m *LineMerger) hunks(base, other string) []hunk {
	a, b, lineArray := m.dmp.DiffLinesToChars(base, other)
	diffs := m.dmp.DiffMain(a, b, false)
	diffs = m.dmp.DiffCharsToLines(diffs, lineArray)

	var out []hunk
	var cur *hunk
	pos := 0
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	open := func() {
		if cur == nil {
			cur = &hunk{start: pos, end: pos}
		}
	}

	for _, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			pos += len(lines)
		case diffmatchpatch.DiffDelete:
			open()
			pos += len(lines)
			cur.end = pos
		case diffmatchpatch.DiffInsert:
			open()
			cur.lines = append(cur.lines, lines...)
		}
	}
	flush()
	return out
}

// apply rebuilds base[start:end] with the given hunks, which all fall inside
// that range and are sorted.
func apply(base []string, start, end int, hunks []hunk) []string {
	var out []string
	pos := start
	for _, h := range hunks {
		out = append(out, base[pos:h.start]...)
		out = append(out, h.lines...)
		pos = h.end
	}
	return append(out, base[pos:end]...)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLines(out *strings.Builder, lines []string) {
	for _, l := range lines {
		out.WriteString(l)
	}
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Fold merges several versions into ours one at a time, so that every side's
// change is applied once. Labels name the sides in conflict markers.
func Fold(m Merger, base, ours []byte, sides [][]byte, labels []string) (Result, error) {
	acc := Result{Data: ours}
	for i, side := range sides {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		r, err := m.Merge(Input{Base: base, Ours: acc.Data, Theirs: side, OursLabel: "working", TheirsLabel: label})
		if err != nil {
			return Result{}, fmt.Errorf("failed to merge side %d: %w", i, err)
		}
		acc.Data = r.Data
		acc.Conflicts += r.Conflicts
		acc.Conflicted = acc.Conflicted || r.Conflicted
		acc.Binary = acc.Binary || r.Binary
	}
	return acc, nil
}
