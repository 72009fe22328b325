package keymap

import (
	"testing"

	"ghostwriter/internal/protocol"
)

func TestMapsCharToInsert(t *testing.T) {
	cmd, ok := Map(Event{Code: CodeChar, Char: 'a'})
	if !ok || cmd.Kind != CmdInsert || cmd.Text != "a" {
		t.Fatalf("got %+v, ok=%v", cmd, ok)
	}
}

func TestCtrlCharIsUnmapped(t *testing.T) {
	_, ok := Map(Event{Code: CodeChar, Char: 'c', Mods: ModCtrl})
	if ok {
		t.Fatal("expected Ctrl+char to be unmapped")
	}
}

func TestMapsEnterToNewline(t *testing.T) {
	cmd, ok := Map(Event{Code: CodeEnter})
	if !ok || cmd.Text != "\n" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestMapsTabToTabChar(t *testing.T) {
	cmd, ok := Map(Event{Code: CodeTab})
	if !ok || cmd.Text != "\t" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestMapsBackspaceAndDelete(t *testing.T) {
	cmd, ok := Map(Event{Code: CodeBackspace})
	if !ok || cmd.Kind != CmdDeletePrev {
		t.Fatalf("got %+v", cmd)
	}
	cmd, ok = Map(Event{Code: CodeDelete})
	if !ok || cmd.Kind != CmdDeleteNext {
		t.Fatalf("got %+v", cmd)
	}
}

func TestMapsArrowToMove(t *testing.T) {
	cmd, ok := Map(Event{Code: CodeLeft})
	if !ok || cmd.Kind != CmdMove || cmd.Dir != protocol.DirLeft {
		t.Fatalf("got %+v", cmd)
	}
}

func TestMapsShiftArrowToSelect(t *testing.T) {
	cmd, ok := Map(Event{Code: CodeLeft, Mods: ModShift})
	if !ok || cmd.Kind != CmdSelect || cmd.Dir != protocol.DirLeft {
		t.Fatalf("got %+v", cmd)
	}
}
