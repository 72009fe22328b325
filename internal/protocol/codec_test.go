package protocol

import (
	"testing"

	"ghostwriter/internal/viewport"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{Version: Version, Type: TypeHello, Data: []byte("payload")}
	raw := EncodeEnvelope(env)
	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != env.Version || got.Type != env.Type || string(got.Data) != string(env.Data) {
		t.Fatalf("got %+v, want %+v", got, env)
	}
}

func TestDecodeEnvelopeTooShort(t *testing.T) {
	if _, err := DecodeEnvelope([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short envelope")
	}
}

func TestHelloRoundTrip(t *testing.T) {
	h := Hello{ClientName: "term", ClientVersion: "1.2.3", Cols: 80, Rows: 24, Truecolor: true}
	got, err := DecodeHello(EncodeHello(h))
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestAuthRoundTrip(t *testing.T) {
	a := Auth{Secret: "s3cr3t"}
	got, err := DecodeAuth(EncodeAuth(a))
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("got %+v", got)
	}
}

func TestInsertRoundTrip(t *testing.T) {
	in := Insert{Pos: 5, Text: " world", Seq: 7}
	got, err := DecodeInsert(EncodeInsert(in))
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestDeleteRoundTrip(t *testing.T) {
	d := Delete{Start: 0, End: 2, Seq: 9}
	got, err := DecodeDelete(EncodeDelete(d))
	if err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Fatalf("got %+v", got)
	}
}

func TestDeleteDirRoundTrip(t *testing.T) {
	d := DeleteDir{Dir: DirLeft, Seq: 3}
	got, err := DecodeDeleteDir(EncodeDeleteDir(d))
	if err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Fatalf("got %+v, want %+v", got, d)
	}
}

func TestMoveSelectRoundTrip(t *testing.T) {
	m, err := DecodeMove(EncodeMove(Move{Dir: DirUp}))
	if err != nil || m.Dir != DirUp {
		t.Fatalf("move: got %+v, err %v", m, err)
	}
	s, err := DecodeSelect(EncodeSelect(Select{Dir: DirRight}))
	if err != nil || s.Dir != DirRight {
		t.Fatalf("select: got %+v, err %v", s, err)
	}
}

func TestAckRoundTrip(t *testing.T) {
	a := Ack{Seq: 3, DocVersion: 42}
	got, err := DecodeAck(EncodeAck(a))
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("got %+v", got)
	}
}

func TestErrorPayloadRoundTrip(t *testing.T) {
	e := ErrorPayload{Code: ErrorBusy, Message: "busy"}
	got, err := DecodeError(EncodeError(e))
	if err != nil {
		t.Fatal(err)
	}
	if got != e {
		t.Fatalf("got %+v", got)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	f := viewport.Frame{
		ID:         "editor",
		Kind:       viewport.KindEditor,
		DocVersion: 3,
		FirstLine:  0,
		Cols:       80,
		Rows:       24,
		Lines: []viewport.Line{
			{Text: "hello", Spans: []viewport.Span{{StartCol: 0, EndCol: 2, Class: viewport.ClassSelection}}},
		},
		Cursors:     []viewport.Cursor{{Line: 0, Col: 5}},
		StatusLeft:  "L",
		StatusRight: "R",
	}
	got, err := DecodeFrame(EncodeFrame(f))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != f.ID || got.Kind != f.Kind || got.DocVersion != f.DocVersion {
		t.Fatalf("got %+v", got)
	}
	if len(got.Lines) != 1 || got.Lines[0].Text != "hello" || len(got.Lines[0].Spans) != 1 {
		t.Fatalf("got lines %+v", got.Lines)
	}
	wantCursor := viewport.Cursor{Line: 0, Col: 5}
	if len(got.Cursors) != 1 || got.Cursors[0] != wantCursor {
		t.Fatalf("got cursors %+v", got.Cursors)
	}
}

func TestDecodeTruncatedPayloadErrors(t *testing.T) {
	full := EncodeInsert(Insert{Pos: 1, Text: "ab", Seq: 1})
	if _, err := DecodeInsert(full[:len(full)-1]); err == nil {
		t.Fatal("expected error decoding truncated insert")
	}
}
