package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// edit is one replacement of base[BaseStart:BaseEnd] (a line range, end
// exclusive) by Lines. An insert has BaseStart == BaseEnd.
type edit struct {
	BaseStart, BaseEnd int
	Lines              []string
}

// editsFromBase diffs base against other at line granularity and returns
// the edits needed to turn base into other, anchored on base line
// positions (spec §4.6, "Content merge... applied by line-level diff-apply
// against base").
func editsFromBase(base, other []string) []edit {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(strings.Join(base, "\n"), strings.Join(other, "\n"))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var edits []edit
	basePos := 0
	var pendingDelete, pendingInsert []string
	pendingStart := 0

	flush := func() {
		if pendingDelete == nil && pendingInsert == nil {
			return
		}
		edits = append(edits, edit{BaseStart: pendingStart, BaseEnd: pendingStart + len(pendingDelete), Lines: pendingInsert})
		pendingDelete, pendingInsert = nil, nil
	}

	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		var diffLines []string
		if text != "" {
			diffLines = strings.Split(text, "\n")
		}

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			basePos += len(diffLines)
			pendingStart = basePos
		case diffmatchpatch.DiffDelete:
			if pendingDelete == nil && pendingInsert == nil {
				pendingStart = basePos
			}
			pendingDelete = append(pendingDelete, diffLines...)
			basePos += len(diffLines)
		case diffmatchpatch.DiffInsert:
			if pendingDelete == nil && pendingInsert == nil {
				pendingStart = basePos
			}
			pendingInsert = append(pendingInsert, diffLines...)
		}
	}
	flush()

	return edits
}

// ContentMergeResult is the outcome of merging two line-based edits of a
// text against their common base.
type ContentMergeResult struct {
	Lines     []string
	Conflicts bool
}

// MergeLines applies the edits base->ours and base->theirs against base,
// taking each side's non-overlapping changes and falling back to
// conflict-marker framing when both sides touch the same base region
// (spec §4.6: "content-merge or conflict").
func MergeLines(base, ours, theirs []string, oursLabel, theirsLabel string) ContentMergeResult {
	oursEdits := editsFromBase(base, ours)
	theirsEdits := editsFromBase(base, theirs)

	var out []string
	conflict := false
	basePos := 0
	oi, ti := 0, 0

	for basePos <= len(base) {
		var oe, te *edit
		if oi < len(oursEdits) && oursEdits[oi].BaseStart == basePos {
			oe = &oursEdits[oi]
		}
		if ti < len(theirsEdits) && theirsEdits[ti].BaseStart == basePos {
			te = &theirsEdits[ti]
		}

		switch {
		case oe == nil && te == nil:
			if basePos >= len(base) {
				basePos++
				continue
			}
			out = append(out, base[basePos])
			basePos++
		case oe != nil && te == nil:
			out = append(out, oe.Lines...)
			basePos = oe.BaseEnd
			oi++
		case oe == nil && te != nil:
			out = append(out, te.Lines...)
			basePos = te.BaseEnd
			ti++
		default:
			if sameEdit(*oe, *te) {
				out = append(out, oe.Lines...)
				basePos = oe.BaseEnd
				oi++
				ti++
				continue
			}
			conflict = true
			out = append(out, "<<<<<<< "+oursLabel)
			out = append(out, oe.Lines...)
			out = append(out, "=======")
			out = append(out, te.Lines...)
			out = append(out, ">>>>>>> "+theirsLabel)
			if oe.BaseEnd > te.BaseEnd {
				basePos = oe.BaseEnd
			} else {
				basePos = te.BaseEnd
			}
			oi++
			ti++
		}
	}

	return ContentMergeResult{Lines: out, Conflicts: conflict}
}

func sameEdit(a, b edit) bool {
	if a.BaseEnd != b.BaseEnd || len(a.Lines) != len(b.Lines) {
		return false
	}
	for i := range a.Lines {
		if a.Lines[i] != b.Lines[i] {
			return false
		}
	}
	return true
}
