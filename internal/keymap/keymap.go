// Package keymap translates raw key events into editor commands. It is
// a pure function with no state of its own; the terminal renderer that
// produces key events and interprets commands lives outside this
// module.
package keymap

import "ghostwriter/internal/protocol"

// Modifier is a bitmask of held modifier keys.
type Modifier uint8

const (
	ModNone  Modifier = 0
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
)

func (m Modifier) has(f Modifier) bool { return m&f != 0 }

// Code identifies a key independent of any character it produces.
type Code uint8

const (
	CodeChar Code = iota
	CodeEnter
	CodeTab
	CodeBackspace
	CodeDelete
	CodeLeft
	CodeRight
	CodeUp
	CodeDown
)

// Event is one raw key press.
type Event struct {
	Code Code
	// Char holds the produced rune when Code is CodeChar.
	Char rune
	Mods Modifier
}

// CommandKind tags the shape of a Command.
type CommandKind int

const (
	CmdInsert CommandKind = iota
	CmdDeletePrev
	CmdDeleteNext
	CmdMove
	CmdSelect
)

// Command is the editor-facing result of mapping an Event.
type Command struct {
	Kind CommandKind
	Text string
	Dir  protocol.Direction
}

// Map translates ev into a Command, or reports ok=false for bindings
// with no editor meaning.
func Map(ev Event) (cmd Command, ok bool) {
	switch ev.Code {
	case CodeChar:
		if ev.Mods.has(ModCtrl) || ev.Mods.has(ModAlt) {
			return Command{}, false
		}
		return Command{Kind: CmdInsert, Text: string(ev.Char)}, true
	case CodeEnter:
		return Command{Kind: CmdInsert, Text: "\n"}, true
	case CodeTab:
		return Command{Kind: CmdInsert, Text: "\t"}, true
	case CodeBackspace:
		return Command{Kind: CmdDeletePrev}, true
	case CodeDelete:
		return Command{Kind: CmdDeleteNext}, true
	case CodeLeft:
		return directional(ev.Mods, protocol.DirLeft), true
	case CodeRight:
		return directional(ev.Mods, protocol.DirRight), true
	case CodeUp:
		return directional(ev.Mods, protocol.DirUp), true
	case CodeDown:
		return directional(ev.Mods, protocol.DirDown), true
	default:
		return Command{}, false
	}
}

func directional(mods Modifier, dir protocol.Direction) Command {
	if mods.has(ModShift) {
		return Command{Kind: CmdSelect, Dir: dir}
	}
	return Command{Kind: CmdMove, Dir: dir}
}
