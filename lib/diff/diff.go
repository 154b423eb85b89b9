// Package diff computes deterministic line-level change sets between content
// snapshots and applies them back. Diff and Apply are inverses: applying the
// changes returned by Diff(from, to) to from always reproduces to exactly.
package diff

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/models/version"
)

// Diff computes the ordered change set transforming from into to. Line
// numbers in Deletion and Modification ranges refer to from; Addition ranges
// refer to to, anchored after a line of from. Identical inputs yield an empty
// set.
func Diff(from string, to string) []version.VersionChange {
	if from == to {
		return []version.VersionChange{}
	}

	fromLines := strings.Split(from, "\n")
	toLines := strings.Split(to, "\n")
	ops := myersOps(fromLines, toLines)

	changes := []version.VersionChange{}
	fromIdx, toIdx := 0, 0
	i := 0
	for i < len(ops) {
		if ops[i] == opEqual {
			fromIdx++
			toIdx++
			i++
			continue
		}

		delStart, insStart := fromIdx, toIdx
		deleted, inserted := 0, 0
		for i < len(ops) && ops[i] != opEqual {
			if ops[i] == opDelete {
				deleted++
				fromIdx++
			} else {
				inserted++
				toIdx++
			}
			i++
		}
		changes = append(changes, hunkChanges(fromLines, toLines, delStart, deleted, insStart, inserted)...)
	}
	return changes
}

// hunkChanges converts one run of non-equal edit ops into changes. A run that
// both deletes and inserts becomes a Modification over the paired lines, with
// the surplus expressed as a trailing Addition or Deletion.
func hunkChanges(fromLines []string, toLines []string, delStart int, deleted int, insStart int, inserted int) []version.VersionChange {
	var out []version.VersionChange

	common := deleted
	if inserted < common {
		common = inserted
	}

	if common > 0 {
		out = append(out, version.Modification{
			Section: sectionFor(fromLines, delStart),
			Lines:   version.LineRange{Start: delStart + 1, End: delStart + common},
			Old:     strings.Join(fromLines[delStart:delStart+common], "\n"),
			New:     strings.Join(toLines[insStart:insStart+common], "\n"),
			Impact:  impactForLines(common),
		})
	}

	if deleted > common {
		start := delStart + common
		out = append(out, version.Deletion{
			Section: sectionFor(fromLines, start),
			Lines:   version.LineRange{Start: start + 1, End: delStart + deleted},
			Content: strings.Join(fromLines[start:delStart+deleted], "\n"),
			Impact:  impactForLines(deleted - common),
		})
	} else if inserted > common {
		start := insStart + common
		out = append(out, version.Addition{
			Section: sectionFor(toLines, start),
			After:   delStart + common,
			Lines:   version.LineRange{Start: start + 1, End: insStart + inserted},
			Content: strings.Join(toLines[start:insStart+inserted], "\n"),
			Impact:  impactForLines(inserted - common),
		})
	}
	return out
}

// FullContentChanges describes brand-new content as a single addition
// covering every line. Root versions carry this as their change set.
func FullContentChanges(content string) []version.VersionChange {
	lines := strings.Split(content, "\n")
	return []version.VersionChange{version.Addition{
		After:   0,
		Lines:   version.LineRange{Start: 1, End: len(lines)},
		Content: content,
		Impact:  impactForLines(len(lines)),
	}}
}

// impactForLines grades a change by how many lines it touches.
func impactForLines(lines int) version.ChangeImpact {
	switch {
	case lines <= 1:
		return version.ImpactMinor
	case lines <= 5:
		return version.ImpactModerate
	default:
		return version.ImpactMajor
	}
}

// sectionFor names the markdown heading governing the given 0-based line, or
// "" when no heading precedes it.
func sectionFor(lines []string, idx int) string {
	if idx >= len(lines) {
		idx = len(lines) - 1
	}
	for i := idx; i >= 0; i-- {
		trimmed := strings.TrimLeft(lines[i], "#")
		if trimmed != lines[i] {
			return strings.TrimSpace(trimmed)
		}
	}
	return ""
}

// actPos is the number of source lines consumed before a change acts.
func actPos(change version.VersionChange) int {
	switch c := change.(type) {
	case version.Addition:
		return c.After
	case version.Deletion:
		return c.Lines.Start - 1
	case version.Modification:
		return c.Lines.Start - 1
	}
	return 0
}

// SortChanges orders a change set for application: ascending by the source
// position each change acts at, additions before consuming changes at the
// same position. The sort is stable so equal changes keep their given order.
func SortChanges(changes []version.VersionChange) []version.VersionChange {
	sorted := make([]version.VersionChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := actPos(sorted[i]), actPos(sorted[j])
		if pi != pj {
			return pi < pj
		}
		_, iAdd := sorted[i].(version.Addition)
		_, jAdd := sorted[j].(version.Addition)
		return iAdd && !jAdd
	})
	return sorted
}

// Apply replays a change set on top of content. Changes may arrive in any
// order; they are applied front to back after sorting. Apply verifies that
// deleted and replaced lines still match what the change recorded and fails
// with an invalid-change error when the set does not fit the content.
func Apply(content string, changes []version.VersionChange) (string, error) {
	if len(changes) == 0 {
		return content, nil
	}

	src := strings.Split(content, "\n")
	out := make([]string, 0, len(src))
	cursor := 0

	for _, change := range SortChanges(changes) {
		pos := actPos(change)
		if pos < cursor {
			return "", exception.NewInvalidChangeError("changes overlap at line " + strconv.Itoa(pos+1))
		}
		if pos > len(src) {
			return "", exception.NewInvalidChangeError("change acts past the end of the content")
		}
		out = append(out, src[cursor:pos]...)
		cursor = pos

		switch c := change.(type) {
		case version.Addition:
			out = append(out, strings.Split(c.Content, "\n")...)
		case version.Deletion:
			if cursor+c.Lines.Len() > len(src) {
				return "", exception.NewInvalidChangeError("deletion extends past the end of the content")
			}
			removed := strings.Join(src[cursor:cursor+c.Lines.Len()], "\n")
			if removed != c.Content {
				return "", exception.NewInvalidChangeError("deleted lines no longer match the content")
			}
			cursor += c.Lines.Len()
		case version.Modification:
			if cursor+c.Lines.Len() > len(src) {
				return "", exception.NewInvalidChangeError("modification extends past the end of the content")
			}
			old := strings.Join(src[cursor:cursor+c.Lines.Len()], "\n")
			if old != c.Old {
				return "", exception.NewInvalidChangeError("modified lines no longer match the content")
			}
			out = append(out, strings.Split(c.New, "\n")...)
			cursor += c.Lines.Len()
		}
	}

	out = append(out, src[cursor:]...)
	return strings.Join(out, "\n"), nil
}
