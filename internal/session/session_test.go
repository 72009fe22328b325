package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ghostwriter/internal/protocol"
	"ghostwriter/internal/wal"
)

func fastConfig() Config {
	return Config{DebounceDelay: 5 * time.Millisecond, WALCompactThreshold: 1 << 20}
}

func runSession(t *testing.T, s *Session) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func drainFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Frames():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestInsertAdvancesSelectionAndDocVersion(t *testing.T) {
	s, err := New("", fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	stop := runSession(t, s)
	defer stop()

	s.Cmds() <- Cmd{Kind: CmdInsert, Text: "hi"}
	drainFrame(t, s)

	if s.buf.Slice(0, s.buf.LenBytes()) != "hi" {
		t.Fatalf("buffer = %q, want hi", s.buf.Slice(0, s.buf.LenBytes()))
	}
	if s.selStart != 2 || s.selEnd != 2 {
		t.Fatalf("selection = [%d,%d), want [2,2)", s.selStart, s.selEnd)
	}
	if s.docVersion != 1 {
		t.Fatalf("docVersion = %d, want 1", s.docVersion)
	}
}

func TestDeletePrevRemovesGraphemeLeftOfEmptySelection(t *testing.T) {
	s, err := New("", fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	stop := runSession(t, s)
	defer stop()

	s.Cmds() <- Cmd{Kind: CmdInsert, Text: "abc"}
	drainFrame(t, s)
	s.Cmds() <- Cmd{Kind: CmdDeletePrev}
	drainFrame(t, s)

	if got := s.buf.Slice(0, s.buf.LenBytes()); got != "ab" {
		t.Fatalf("buffer = %q, want ab", got)
	}
}

func TestMoveAndSelectDirections(t *testing.T) {
	s, err := New("", fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	stop := runSession(t, s)
	defer stop()

	s.Cmds() <- Cmd{Kind: CmdInsert, Text: "abc"}
	drainFrame(t, s)

	s.Cmds() <- Cmd{Kind: CmdMove, Dir: protocol.DirLeft}
	drainFrame(t, s)
	if s.selStart != 2 || s.selEnd != 2 {
		t.Fatalf("after move left = [%d,%d), want [2,2)", s.selStart, s.selEnd)
	}

	s.Cmds() <- Cmd{Kind: CmdSelect, Dir: protocol.DirLeft}
	drainFrame(t, s)
	if s.selStart != 2 || s.selEnd != 1 {
		t.Fatalf("after select left = [%d,%d), want anchor 2, active 1", s.selStart, s.selEnd)
	}
}

func TestEditsInHexModeAreNoOps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin.dat")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 'h', 'i'}, 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path, "", fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	stop := runSession(t, s)
	defer stop()

	if s.hexBytes == nil {
		t.Fatal("expected hex mode for invalid-UTF-8 file")
	}

	before := s.docVersion
	s.Cmds() <- Cmd{Kind: CmdInsert, Text: "x"}
	drainFrame(t, s)
	if s.docVersion != before {
		t.Fatalf("docVersion changed in hex mode: %d -> %d", before, s.docVersion)
	}
}

func TestSaveWritesFileAndCloseFlushesPendingSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("start"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path, "", Config{DebounceDelay: time.Hour, WALCompactThreshold: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Cmds() <- Cmd{Kind: CmdInsert, Text: "!"}
	drainFrame(t, s)

	cancel()
	<-done

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// The caret of a freshly opened session sits at byte 0.
	if string(got) != "!start" {
		t.Fatalf("file contents = %q, want %q", got, "!start")
	}
}

func TestWALRecordsSurviveAcrossSessionReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	walPath := filepath.Join(dir, "doc.wal")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, walPath, fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	stop := runSession(t, s)
	s.Cmds() <- Cmd{Kind: CmdInsert, Text: "ab"}
	drainFrame(t, s)
	stop()

	records, err := wal.Replay(walPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Op != wal.OpInsert {
		t.Fatalf("expected one Insert record, got %v", records)
	}
}

func drainAck(t *testing.T, s *Session) protocol.Ack {
	t.Helper()
	select {
	case ack := <-s.Acks():
		return ack
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ack")
		return protocol.Ack{}
	}
}

func TestInsertAndDeleteRangeEmitAckWithSeqAndDocVersion(t *testing.T) {
	s, err := New("", fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	stop := runSession(t, s)
	defer stop()

	s.Cmds() <- Cmd{Kind: CmdInsert, Text: "abc", Seq: 7}
	drainFrame(t, s)
	ack := drainAck(t, s)
	if ack.Seq != 7 || ack.DocVersion != 1 {
		t.Fatalf("ack = %+v, want Seq=7 DocVersion=1", ack)
	}

	s.Cmds() <- Cmd{Kind: CmdDeleteRange, Start: 0, End: 1, Seq: 9}
	drainFrame(t, s)
	ack = drainAck(t, s)
	if ack.Seq != 9 || ack.DocVersion != 2 {
		t.Fatalf("ack = %+v, want Seq=9 DocVersion=2", ack)
	}
}

func TestRequestFrameEmitsCurrentFrame(t *testing.T) {
	s, err := New("", fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	stop := runSession(t, s)
	defer stop()

	s.Cmds() <- Cmd{Kind: CmdRequestFrame, Reason: "test"}
	drainFrame(t, s)
}
