package termio

import (
	"bufio"
	"errors"
	"io"
	"time"

	"ghostwriter/internal/keymap"
)

// ErrQuit is returned by Next when it decodes the local-mode quit chord
// (Ctrl+Q), which has no editor meaning and is handled by the caller.
var ErrQuit = errors.New("termio: quit chord")

// Decoder turns a raw terminal byte stream into keymap.Event values,
// recognizing the small set of ANSI escape sequences arrow keys and
// Delete produce. Anything else decodes as a single rune.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r, which must already be in raw/cbreak mode so escape
// sequences arrive byte-by-byte rather than line-buffered.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks for the next key event. It returns ErrQuit for Ctrl+Q.
func (d *Decoder) Next() (keymap.Event, error) {
	ch, _, err := d.r.ReadRune()
	if err != nil {
		return keymap.Event{}, err
	}

	switch ch {
	case 0x11: // Ctrl+Q
		return keymap.Event{}, ErrQuit
	case '\r', '\n':
		return keymap.Event{Code: keymap.CodeEnter}, nil
	case '\t':
		return keymap.Event{Code: keymap.CodeTab}, nil
	case 0x7f, 0x08:
		return keymap.Event{Code: keymap.CodeBackspace}, nil
	case 0x1b:
		return d.decodeEscape()
	}

	if ch < 0x20 {
		return keymap.Event{Code: keymap.CodeChar, Char: ch + 'a' - 1, Mods: keymap.ModCtrl}, nil
	}
	return keymap.Event{Code: keymap.CodeChar, Char: ch}, nil
}

// decodeEscape handles the CSI sequences a plain terminal (no alt/meta
// combos) sends for arrows and Delete: ESC [ A/B/C/D and ESC [ 3 ~.
// A bare ESC with nothing following within the read is reported as a
// no-op char event (ESC with ModCtrl, which keymap leaves unmapped); the
// renderer loop simply requests the next key.
func (d *Decoder) decodeEscape() (keymap.Event, error) {
	b1, err := d.peekWithin(50 * time.Millisecond)
	if err != nil || b1 != '[' {
		return keymap.Event{Code: keymap.CodeChar, Char: 0x1b, Mods: keymap.ModCtrl}, nil
	}
	_, _ = d.r.ReadByte()

	b2, err := d.r.ReadByte()
	if err != nil {
		return keymap.Event{}, err
	}
	switch b2 {
	case 'A':
		return keymap.Event{Code: keymap.CodeUp}, nil
	case 'B':
		return keymap.Event{Code: keymap.CodeDown}, nil
	case 'C':
		return keymap.Event{Code: keymap.CodeRight}, nil
	case 'D':
		return keymap.Event{Code: keymap.CodeLeft}, nil
	case '3':
		if b3, err := d.r.ReadByte(); err == nil && b3 == '~' {
			return keymap.Event{Code: keymap.CodeDelete}, nil
		}
		return keymap.Event{Code: keymap.CodeChar, Char: 0x1b, Mods: keymap.ModCtrl}, nil
	default:
		return keymap.Event{Code: keymap.CodeChar, Char: 0x1b, Mods: keymap.ModCtrl}, nil
	}
}

// peekWithin returns the next buffered byte without consuming it. It does
// not actually wait out the timeout (bufio.Reader has no deadline hook);
// the parameter documents intent for a future reader with cancellation.
func (d *Decoder) peekWithin(_ time.Duration) (byte, error) {
	buf, err := d.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}
