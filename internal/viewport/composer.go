package viewport

import (
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"ghostwriter/internal/rope"
)

// Selection is a byte range in the buffer eligible to render as a "sel"
// span.
type Selection struct {
	Start int
	End   int
}

// ComposeEditor builds an editor-mode Frame over buf, per the rules of
// the editor viewport: selection spans, a trailing-whitespace span, and
// an "err" span for every U+FFFD left over from a lossy decode, each
// clipped to the horizontal window [hscroll, hscroll+cols).
func ComposeEditor(
	buf *rope.Buffer,
	firstLine, cols, rows, hscroll int,
	selections []Selection,
	cursors []int,
	docVersion uint64,
	statusLeft, statusRight string,
) Frame {
	rawLines := buf.SliceLines(firstLine, rows)
	lines := make([]Line, 0, len(rawLines))

	for i, text := range rawLines {
		lineIdx := firstLine + i
		lineStart := buf.LineToByte(lineIdx)
		lineEnd := lineStart + len(text)

		var spans []Span
		for _, sel := range selections {
			if sp, ok := clipSpan(sel.Start-lineStart, min(sel.End, lineEnd)-lineStart, hscroll, cols, ClassSelection); ok {
				spans = append(spans, sp)
			}
		}

		trimmed := strings.TrimRight(text, " \t")
		if len(trimmed) < len(text) {
			if sp, ok := clipSpan(len(trimmed), len(text), hscroll, cols, ClassTrailingSpace); ok {
				spans = append(spans, sp)
			}
		}

		visible := horizontalSlice(text, hscroll, cols)
		spans = append(spans, errorSpans(visible)...)

		lines = append(lines, Line{Text: visible, Spans: spans})
	}

	cursorsOut := lo.Map(cursors, func(byteIdx int, _ int) Cursor {
		line, col := buf.ByteToLineCol(byteIdx)
		return Cursor{Line: line, Col: col}
	})

	return Frame{
		ID:          "editor",
		Kind:        KindEditor,
		DocVersion:  docVersion,
		FirstLine:   firstLine,
		Cols:        cols,
		Rows:        rows,
		Lines:       lines,
		Cursors:     cursorsOut,
		StatusLeft:  statusLeft,
		StatusRight: statusRight,
	}
}

// clipSpan projects the line-local byte range [start, end) into the
// visible horizontal window [hscroll, hscroll+cols), returning false if
// the intersection is empty.
func clipSpan(start, end, hscroll, cols int, class StyleClass) (Span, bool) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return Span{}, false
	}
	windowEnd := hscroll + cols
	if end <= hscroll || start >= windowEnd {
		return Span{}, false
	}
	if start < hscroll {
		start = hscroll
	}
	if end > windowEnd {
		end = windowEnd
	}
	return Span{StartCol: start - hscroll, EndCol: end - hscroll, Class: class}, true
}

func horizontalSlice(text string, hscroll, cols int) string {
	if hscroll >= len(text) {
		return ""
	}
	end := hscroll + cols
	if end > len(text) {
		end = len(text)
	}
	return text[hscroll:end]
}

// errorSpans emits a one-column "err" span for every U+FFFD rune in
// visible text, a detail the original viewport composer this package is
// adapted from did not surface.
func errorSpans(visible string) []Span {
	var spans []Span
	col := 0
	for _, r := range visible {
		w := utf8.RuneLen(r)
		if r == utf8.RuneError {
			spans = append(spans, Span{StartCol: col, EndCol: col + 1, Class: ClassReplacementErr})
		}
		col += w
	}
	return spans
}
