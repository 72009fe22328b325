package viewport

import "testing"

func TestComposeHexRendersSingleLine(t *testing.T) {
	data := []byte("hello\x00world\xff")
	frame := ComposeHex(data, 0, 80, 1, 1, "", "")
	want := "68 65 6C 6C 6F 00 77 6F  72 6C 64 FF             |hello.world."
	if frame.Lines[0].Text != want {
		t.Fatalf("got  %q\nwant %q", frame.Lines[0].Text, want)
	}
}

func TestComposeHexMultipleRows(t *testing.T) {
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i)
	}
	frame := ComposeHex(data, 0, 80, 10, 1, "", "")
	if len(frame.Lines) != 2 {
		t.Fatalf("expected 2 rows for 20 bytes, got %d", len(frame.Lines))
	}
}

func TestComposeHexNoCursorsOrSpans(t *testing.T) {
	frame := ComposeHex([]byte("x"), 0, 80, 1, 1, "", "")
	if frame.Cursors != nil {
		t.Fatalf("expected nil cursors, got %+v", frame.Cursors)
	}
	if frame.Lines[0].Spans != nil {
		t.Fatalf("expected nil spans, got %+v", frame.Lines[0].Spans)
	}
}
