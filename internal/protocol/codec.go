package protocol

import (
	"encoding/binary"
	"fmt"

	"ghostwriter/internal/ghosterr"
	"ghostwriter/internal/viewport"
)

// EncodeEnvelope serializes env to its wire form: 2-byte big-endian
// version, 1-byte type, 4-byte big-endian data length, data.
func EncodeEnvelope(env Envelope) []byte {
	out := make([]byte, 0, 7+len(env.Data))
	out = appendUint16(out, env.Version)
	out = append(out, byte(env.Type))
	out = appendUint32(out, uint32(len(env.Data)))
	out = append(out, env.Data...)
	return out
}

// DecodeEnvelope parses the wire form produced by EncodeEnvelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if len(raw) < 7 {
		return Envelope{}, ghosterr.New(ghosterr.KindProtocol, "envelope too short", nil)
	}
	version := binary.BigEndian.Uint16(raw[0:2])
	typ := MessageType(raw[2])
	length := binary.BigEndian.Uint32(raw[3:7])
	if uint32(len(raw)-7) != length {
		return Envelope{}, ghosterr.New(ghosterr.KindProtocol, "envelope length mismatch", nil)
	}
	return Envelope{Version: version, Type: typ, Data: raw[7:]}, nil
}

type writer struct {
	buf []byte
}

func (w *writer) byte(b byte)      { w.buf = append(w.buf, b) }
func (w *writer) uint16(v uint16)  { w.buf = appendUint16(w.buf, v) }
func (w *writer) uint32(v uint32)  { w.buf = appendUint32(w.buf, v) }
func (w *writer) uint64(v uint64)  { w.buf = appendUint64(w.buf, v) }
func (w *writer) bool(b bool) {
	if b {
		w.byte(1)
	} else {
		w.byte(0)
	}
}
func (w *writer) str(s string) {
	w.uint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}
func (w *writer) blob(b []byte) {
	w.uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

type reader struct {
	buf []byte
	pos int
}

func newReader(b []byte) *reader { return &reader{buf: b} }

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return ghosterr.New(ghosterr.KindProtocol, "payload truncated", nil)
	}
	return nil
}

func (r *reader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) bool() (bool, error) {
	b, err := r.byte()
	return b != 0, err
}

func (r *reader) str() (string, error) {
	n, err := r.uint16()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) blob() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// EncodeHello serializes a Hello payload.
func EncodeHello(h Hello) []byte {
	w := &writer{}
	w.str(h.ClientName)
	w.str(h.ClientVersion)
	w.uint16(h.Cols)
	w.uint16(h.Rows)
	w.bool(h.Truecolor)
	return w.buf
}

// DecodeHello parses a Hello payload.
func DecodeHello(data []byte) (Hello, error) {
	r := newReader(data)
	name, err := r.str()
	if err != nil {
		return Hello{}, err
	}
	version, err := r.str()
	if err != nil {
		return Hello{}, err
	}
	cols, err := r.uint16()
	if err != nil {
		return Hello{}, err
	}
	rows, err := r.uint16()
	if err != nil {
		return Hello{}, err
	}
	truecolor, err := r.bool()
	if err != nil {
		return Hello{}, err
	}
	return Hello{ClientName: name, ClientVersion: version, Cols: cols, Rows: rows, Truecolor: truecolor}, nil
}

// EncodeAuth serializes an Auth payload.
func EncodeAuth(a Auth) []byte {
	w := &writer{}
	w.str(a.Secret)
	return w.buf
}

// DecodeAuth parses an Auth payload.
func DecodeAuth(data []byte) (Auth, error) {
	r := newReader(data)
	secret, err := r.str()
	if err != nil {
		return Auth{}, err
	}
	return Auth{Secret: secret}, nil
}

// EncodeResize serializes a Resize payload.
func EncodeResize(rz Resize) []byte {
	w := &writer{}
	w.uint16(rz.Cols)
	w.uint16(rz.Rows)
	return w.buf
}

// DecodeResize parses a Resize payload.
func DecodeResize(data []byte) (Resize, error) {
	r := newReader(data)
	cols, err := r.uint16()
	if err != nil {
		return Resize{}, err
	}
	rows, err := r.uint16()
	if err != nil {
		return Resize{}, err
	}
	return Resize{Cols: cols, Rows: rows}, nil
}

// EncodeInsert serializes an Insert payload.
func EncodeInsert(ins Insert) []byte {
	w := &writer{}
	w.uint64(ins.Pos)
	w.str(ins.Text)
	w.uint32(ins.Seq)
	return w.buf
}

// DecodeInsert parses an Insert payload.
func DecodeInsert(data []byte) (Insert, error) {
	r := newReader(data)
	pos, err := r.uint64()
	if err != nil {
		return Insert{}, err
	}
	text, err := r.str()
	if err != nil {
		return Insert{}, err
	}
	seq, err := r.uint32()
	if err != nil {
		return Insert{}, err
	}
	return Insert{Pos: pos, Text: text, Seq: seq}, nil
}

// EncodeDelete serializes a Delete payload.
func EncodeDelete(del Delete) []byte {
	w := &writer{}
	w.uint64(del.Start)
	w.uint64(del.End)
	w.uint32(del.Seq)
	return w.buf
}

// DecodeDelete parses a Delete payload.
func DecodeDelete(data []byte) (Delete, error) {
	r := newReader(data)
	start, err := r.uint64()
	if err != nil {
		return Delete{}, err
	}
	end, err := r.uint64()
	if err != nil {
		return Delete{}, err
	}
	seq, err := r.uint32()
	if err != nil {
		return Delete{}, err
	}
	return Delete{Start: start, End: end, Seq: seq}, nil
}

// EncodeMove serializes a Move payload.
func EncodeMove(m Move) []byte { return []byte{byte(m.Dir)} }

// DecodeMove parses a Move payload.
func DecodeMove(data []byte) (Move, error) {
	r := newReader(data)
	b, err := r.byte()
	if err != nil {
		return Move{}, err
	}
	return Move{Dir: Direction(b)}, nil
}

// EncodeSelect serializes a Select payload.
func EncodeSelect(s Select) []byte { return []byte{byte(s.Dir)} }

// DecodeSelect parses a Select payload.
func DecodeSelect(data []byte) (Select, error) {
	r := newReader(data)
	b, err := r.byte()
	if err != nil {
		return Select{}, err
	}
	return Select{Dir: Direction(b)}, nil
}

// EncodeDeleteDir serializes a DeleteDir payload.
func EncodeDeleteDir(d DeleteDir) []byte {
	w := &writer{}
	w.byte(byte(d.Dir))
	w.uint32(d.Seq)
	return w.buf
}

// DecodeDeleteDir parses a DeleteDir payload.
func DecodeDeleteDir(data []byte) (DeleteDir, error) {
	r := newReader(data)
	dir, err := r.byte()
	if err != nil {
		return DeleteDir{}, err
	}
	seq, err := r.uint32()
	if err != nil {
		return DeleteDir{}, err
	}
	return DeleteDir{Dir: Direction(dir), Seq: seq}, nil
}

// EncodeScroll serializes a Scroll payload.
func EncodeScroll(s Scroll) []byte {
	w := &writer{}
	w.uint64(uint64(s.FirstLine))
	w.uint16(s.HScroll)
	return w.buf
}

// DecodeScroll parses a Scroll payload.
func DecodeScroll(data []byte) (Scroll, error) {
	r := newReader(data)
	first, err := r.uint64()
	if err != nil {
		return Scroll{}, err
	}
	hscroll, err := r.uint16()
	if err != nil {
		return Scroll{}, err
	}
	return Scroll{FirstLine: int64(first), HScroll: hscroll}, nil
}

// EncodeRequestFrame serializes a RequestFrame payload.
func EncodeRequestFrame(rf RequestFrame) []byte {
	w := &writer{}
	w.str(rf.Reason)
	return w.buf
}

// DecodeRequestFrame parses a RequestFrame payload.
func DecodeRequestFrame(data []byte) (RequestFrame, error) {
	r := newReader(data)
	reason, err := r.str()
	if err != nil {
		return RequestFrame{}, err
	}
	return RequestFrame{Reason: reason}, nil
}

// EncodeAck serializes an Ack payload.
func EncodeAck(a Ack) []byte {
	w := &writer{}
	w.uint32(a.Seq)
	w.uint64(a.DocVersion)
	return w.buf
}

// DecodeAck parses an Ack payload.
func DecodeAck(data []byte) (Ack, error) {
	r := newReader(data)
	seq, err := r.uint32()
	if err != nil {
		return Ack{}, err
	}
	docV, err := r.uint64()
	if err != nil {
		return Ack{}, err
	}
	return Ack{Seq: seq, DocVersion: docV}, nil
}

// EncodeError serializes an ErrorPayload.
func EncodeError(e ErrorPayload) []byte {
	w := &writer{}
	w.byte(byte(e.Code))
	w.str(e.Message)
	return w.buf
}

// DecodeError parses an ErrorPayload.
func DecodeError(data []byte) (ErrorPayload, error) {
	r := newReader(data)
	code, err := r.byte()
	if err != nil {
		return ErrorPayload{}, err
	}
	msg, err := r.str()
	if err != nil {
		return ErrorPayload{}, err
	}
	return ErrorPayload{Code: ErrorCode(code), Message: msg}, nil
}

// EncodeFrame serializes a viewport.Frame.
func EncodeFrame(f viewport.Frame) []byte {
	w := &writer{}
	w.str(f.ID)
	w.str(string(f.Kind))
	w.uint64(f.DocVersion)
	w.uint64(uint64(f.FirstLine))
	w.uint16(uint16(f.Cols))
	w.uint16(uint16(f.Rows))
	w.uint32(uint32(len(f.Lines)))
	for _, line := range f.Lines {
		w.str(line.Text)
		w.uint16(uint16(len(line.Spans)))
		for _, sp := range line.Spans {
			w.uint16(uint16(sp.StartCol))
			w.uint16(uint16(sp.EndCol))
			w.str(string(sp.Class))
		}
	}
	w.uint16(uint16(len(f.Cursors)))
	for _, c := range f.Cursors {
		w.uint64(uint64(c.Line))
		w.uint16(uint16(c.Col))
	}
	w.str(f.StatusLeft)
	w.str(f.StatusRight)
	return w.buf
}

// DecodeFrame parses a viewport.Frame.
func DecodeFrame(data []byte) (viewport.Frame, error) {
	r := newReader(data)
	id, err := r.str()
	if err != nil {
		return viewport.Frame{}, err
	}
	kind, err := r.str()
	if err != nil {
		return viewport.Frame{}, err
	}
	docV, err := r.uint64()
	if err != nil {
		return viewport.Frame{}, err
	}
	firstLine, err := r.uint64()
	if err != nil {
		return viewport.Frame{}, err
	}
	cols, err := r.uint16()
	if err != nil {
		return viewport.Frame{}, err
	}
	rows, err := r.uint16()
	if err != nil {
		return viewport.Frame{}, err
	}
	nLines, err := r.uint32()
	if err != nil {
		return viewport.Frame{}, err
	}
	lines := make([]viewport.Line, 0, nLines)
	for i := uint32(0); i < nLines; i++ {
		text, err := r.str()
		if err != nil {
			return viewport.Frame{}, err
		}
		nSpans, err := r.uint16()
		if err != nil {
			return viewport.Frame{}, err
		}
		spans := make([]viewport.Span, 0, nSpans)
		for j := uint16(0); j < nSpans; j++ {
			start, err := r.uint16()
			if err != nil {
				return viewport.Frame{}, err
			}
			end, err := r.uint16()
			if err != nil {
				return viewport.Frame{}, err
			}
			class, err := r.str()
			if err != nil {
				return viewport.Frame{}, err
			}
			spans = append(spans, viewport.Span{StartCol: int(start), EndCol: int(end), Class: viewport.StyleClass(class)})
		}
		lines = append(lines, viewport.Line{Text: text, Spans: spans})
	}
	nCursors, err := r.uint16()
	if err != nil {
		return viewport.Frame{}, err
	}
	cursors := make([]viewport.Cursor, 0, nCursors)
	for i := uint16(0); i < nCursors; i++ {
		line, err := r.uint64()
		if err != nil {
			return viewport.Frame{}, err
		}
		col, err := r.uint16()
		if err != nil {
			return viewport.Frame{}, err
		}
		cursors = append(cursors, viewport.Cursor{Line: int(line), Col: int(col)})
	}
	statusLeft, err := r.str()
	if err != nil {
		return viewport.Frame{}, err
	}
	statusRight, err := r.str()
	if err != nil {
		return viewport.Frame{}, err
	}
	return viewport.Frame{
		ID:          id,
		Kind:        viewport.Kind(kind),
		DocVersion:  docV,
		FirstLine:   int(firstLine),
		Cols:        int(cols),
		Rows:        int(rows),
		Lines:       lines,
		Cursors:     cursors,
		StatusLeft:  statusLeft,
		StatusRight: statusRight,
	}, nil
}

// DescribeType returns a short diagnostic label for logging unknown or
// malformed envelope types.
func DescribeType(t MessageType) string {
	return fmt.Sprintf("type(%d)", t)
}
