package viewport

import (
	"testing"

	"ghostwriter/internal/rope"
)

func TestComposeEditorSelectionAndWhitespace(t *testing.T) {
	buf := rope.FromText("hello \nworld\t\n")
	frame := ComposeEditor(buf, 0, 10, 2, 0, []Selection{{Start: 3, End: 9}}, []int{8}, 1, "L", "R")

	if len(frame.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(frame.Lines))
	}
	if frame.Lines[0].Text != "hello " {
		t.Fatalf("line 0 text = %q", frame.Lines[0].Text)
	}
	if frame.Lines[1].Text != "world\t" {
		t.Fatalf("line 1 text = %q", frame.Lines[1].Text)
	}

	wantLine0 := []Span{
		{StartCol: 3, EndCol: 6, Class: ClassSelection},
		{StartCol: 5, EndCol: 6, Class: ClassTrailingSpace},
	}
	assertSpans(t, "line0", frame.Lines[0].Spans, wantLine0)

	wantLine1 := []Span{
		{StartCol: 0, EndCol: 2, Class: ClassSelection},
		{StartCol: 5, EndCol: 6, Class: ClassTrailingSpace},
	}
	assertSpans(t, "line1", frame.Lines[1].Spans, wantLine1)

	if len(frame.Cursors) != 1 || frame.Cursors[0] != (Cursor{Line: 1, Col: 1}) {
		t.Fatalf("unexpected cursors: %+v", frame.Cursors)
	}
	if frame.StatusLeft != "L" || frame.StatusRight != "R" {
		t.Fatalf("unexpected status: %+v", frame)
	}
}

func TestComposeEditorHorizontalSlice(t *testing.T) {
	buf := rope.FromText("abcdefghij\n")
	frame := ComposeEditor(buf, 0, 4, 1, 3, nil, nil, 1, "", "")
	if frame.Lines[0].Text != "defg" {
		t.Fatalf("got %q", frame.Lines[0].Text)
	}
}

func TestComposeEditorReplacementErrSpan(t *testing.T) {
	buf := rope.FromText("a�b")
	frame := ComposeEditor(buf, 0, 10, 1, 0, nil, nil, 1, "", "")
	found := false
	for _, sp := range frame.Lines[0].Spans {
		if sp.Class == ClassReplacementErr && sp.StartCol == 1 && sp.EndCol == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected err span at col 1, got %+v", frame.Lines[0].Spans)
	}
}

func assertSpans(t *testing.T, label string, got, want []Span) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: spans = %+v, want %+v", label, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s: span[%d] = %+v, want %+v", label, i, got[i], want[i])
		}
	}
}
