// Package session implements the editor's per-connection actor: it owns
// the buffer, selection, viewport window, undo stack, WAL and debounced
// save for one open file and drains a command channel, emitting a Frame
// after every command that can change what the client sees.
//
// A Session is not safe for concurrent use from multiple goroutines
// except through its channel-based Cmds/Frames/Acks interface and
// SetStatus, which takes the session lock; this mirrors the teacher
// repo's single-writer-goroutine actors (see wsserver.Hub).
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bep/debounce"

	"ghostwriter/internal/atomicfile"
	"ghostwriter/internal/ghosterr"
	"ghostwriter/internal/protocol"
	"ghostwriter/internal/rope"
	"ghostwriter/internal/undo"
	"ghostwriter/internal/viewport"
	"ghostwriter/internal/wal"
)

// frameChanCapacity bounds the frame channel; RequestFrame and mutation
// emission both await capacity rather than drop a frame the caller asked
// for (§4.8's back-pressure rule).
const frameChanCapacity = 8

// Config governs the ambient knobs a session needs beyond what a single
// edit command carries: debounce delay, WAL compaction threshold.
type Config struct {
	DebounceDelay       time.Duration
	WALCompactThreshold int64
}

// DefaultConfig returns the values spec.md §4.9 and §9 call out as
// suggested defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay:       100 * time.Millisecond,
		WALCompactThreshold: 1 << 20,
	}
}

// CmdKind tags the shape of a Cmd.
type CmdKind int

const (
	CmdInsert CmdKind = iota
	CmdDeleteRange
	CmdDeletePrev
	CmdDeleteNext
	CmdMove
	CmdSelect
	CmdScroll
	CmdResize
	CmdRequestFrame
	CmdSave
	CmdClose
)

// Cmd is one actor command. Only the fields relevant to Kind are read.
type Cmd struct {
	Kind CmdKind

	Text string // CmdInsert

	Start, End int // CmdDeleteRange; explicit byte range to remove

	Dir protocol.Direction // CmdMove, CmdSelect

	FirstLine int // CmdScroll
	HScroll   int // CmdScroll

	Cols, Rows int // CmdResize

	Reason string // CmdRequestFrame, logged only

	// Seq is the client-assigned sequence number from the originating
	// protocol.Insert/Delete/DeleteDir envelope, echoed back on the Ack
	// emitted for every mutating command (§5, §6). Zero for
	// locally-originated commands that carry no client envelope.
	Seq uint32
}

// Session is the single-writer actor for one open file.
type Session struct {
	mu sync.Mutex

	buf  *rope.Buffer
	undo *undo.Stack
	wal  *wal.WAL
	path string

	// hexBytes is non-nil only when the loaded file was not valid UTF-8;
	// while set, every edit command is a silent no-op per §4.8.
	hexBytes []byte

	selStart, selEnd int
	docVersion       uint64

	firstLine, hscroll int
	firstRow           int // hex mode scroll position, in rows of 16 bytes
	cols, rows         int

	statusLeft, statusRight string

	cfg       Config
	debounced func(func())

	cmds   chan Cmd
	frames chan viewport.Frame
	acks   chan protocol.Ack
}

// Open loads path into a new Session. A WAL at walPath (if non-empty) is
// opened and replayed only to recover the last doc_version; its records
// are not re-applied to the buffer, which holds the file as last saved.
// Neither Open nor cmd/ghostwriter applies WAL records; wal.Replay
// returns them to any caller that does.
func Open(path, walPath string, cfg Config) (*Session, error) {
	buf, err := rope.Open(path)
	if err != nil {
		return nil, err
	}
	return newSession(buf, path, walPath, cfg)
}

// New starts a session over an in-memory empty buffer, used for "Untitled"
// documents that have never been saved.
func New(walPath string, cfg Config) (*Session, error) {
	return newSession(rope.FromText(""), "", walPath, cfg)
}

func newSession(buf *rope.Buffer, path, walPath string, cfg Config) (*Session, error) {
	s := &Session{
		buf:    buf,
		undo:   undo.New(),
		path:   path,
		cols:   80,
		rows:   24,
		cfg:    cfg,
		cmds:   make(chan Cmd, frameChanCapacity),
		frames: make(chan viewport.Frame, frameChanCapacity),
		acks:   make(chan protocol.Ack, frameChanCapacity),
	}
	if buf.HasInvalid() {
		raw, err := rawBytesFor(path)
		if err != nil {
			return nil, err
		}
		s.hexBytes = raw
	}
	if walPath != "" {
		w, err := wal.Open(walPath)
		if err != nil {
			return nil, err
		}
		s.wal = w
		s.docVersion = w.DocVersion()
	}
	s.debounced = debounce.New(cfg.DebounceDelay)
	return s, nil
}

func rawBytesFor(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ghosterr.New(ghosterr.KindFileIO, "read hex-mode bytes", err)
	}
	return raw, nil
}

// Cmds returns the channel on which the caller sends commands.
func (s *Session) Cmds() chan<- Cmd { return s.cmds }

// Frames returns the channel on which composed frames are delivered.
func (s *Session) Frames() <-chan viewport.Frame { return s.frames }

// Acks returns the channel on which an Ack is delivered for every mutating
// command (CmdInsert, CmdDeleteRange, CmdDeletePrev, CmdDeleteNext),
// carrying back the command's Seq and the resulting doc_version (§5, §6).
// Callers that don't forward Acks to a remote client (e.g. local-mode CLI)
// must still drain this channel so a full buffer never back-pressures the
// actor loop.
func (s *Session) Acks() <-chan protocol.Ack { return s.acks }

// Run drains commands until ctx is cancelled or a Close command arrives,
// flushing any pending debounced save before returning. It is meant to be
// launched in its own goroutine by the caller (acceptor session handler
// or the local CLI mode).
func (s *Session) Run(ctx context.Context) {
	defer s.flushSave()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-s.cmds:
			if !ok {
				return
			}
			if s.handle(ctx, cmd) {
				return
			}
		}
	}
}

// handle applies one command and returns true if the actor should stop.
func (s *Session) handle(ctx context.Context, cmd Cmd) (stop bool) {
	switch cmd.Kind {
	case CmdInsert:
		s.insert(cmd.Text)
		s.emit(ctx)
		s.sendAck(ctx, cmd.Seq)
	case CmdDeleteRange:
		s.deleteRange(cmd.Start, cmd.End)
		s.emit(ctx)
		s.sendAck(ctx, cmd.Seq)
	case CmdDeletePrev:
		s.deletePrev()
		s.emit(ctx)
		s.sendAck(ctx, cmd.Seq)
	case CmdDeleteNext:
		s.deleteNext()
		s.emit(ctx)
		s.sendAck(ctx, cmd.Seq)
	case CmdMove:
		s.move(cmd.Dir)
		s.emit(ctx)
	case CmdSelect:
		s.selectTo(cmd.Dir)
		s.emit(ctx)
	case CmdScroll:
		s.mu.Lock()
		s.firstLine = cmd.FirstLine
		s.hscroll = cmd.HScroll
		s.mu.Unlock()
		s.emit(ctx)
	case CmdResize:
		s.mu.Lock()
		s.cols = cmd.Cols
		s.rows = cmd.Rows
		s.mu.Unlock()
		s.emit(ctx)
	case CmdRequestFrame:
		slog.Debug("[session] frame requested", "reason", cmd.Reason)
		s.emit(ctx)
	case CmdSave:
		if err := s.save(); err != nil {
			slog.Warn("[session] explicit save failed", "error", err)
		}
	case CmdClose:
		return true
	}
	return false
}

// insert applies an Insert in editor mode; hex mode rejects it silently
// per §4.8.
func (s *Session) insert(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hexBytes != nil {
		return
	}
	at := s.selEnd
	s.undo.Insert(s.buf, at, text)
	s.selStart = at + len(text)
	s.selEnd = s.selStart
	s.docVersion++
	if s.wal != nil {
		if err := s.wal.AppendInsert(s.docVersion, at, []byte(text)); err != nil {
			slog.Warn("[session] wal append insert failed", "error", err)
		}
	}
	s.scheduleSave()
}

// deleteRange removes [start, end), a no-op when start==end. The
// empty-selection grapheme-widening case is resolved by deleteBounds
// before this is called.
func (s *Session) deleteRange(start, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hexBytes != nil {
		return
	}
	if start == end {
		return
	}
	if start > end {
		start, end = end, start
	}
	s.undo.Delete(s.buf, start, end)
	s.selStart, s.selEnd = start, start
	s.docVersion++
	if s.wal != nil {
		if err := s.wal.AppendDelete(s.docVersion, start, end); err != nil {
			slog.Warn("[session] wal append delete failed", "error", err)
		}
	}
	s.scheduleSave()
}

// deletePrev and deleteNext implement Backspace/Delete: they delete the
// current selection if non-empty, otherwise widen an empty selection by
// one grapheme in the respective direction first, per §4.8.
func (s *Session) deletePrev() {
	start, end := s.deleteBounds(protocol.DirLeft)
	s.deleteRange(start, end)
}

func (s *Session) deleteNext() {
	start, end := s.deleteBounds(protocol.DirRight)
	s.deleteRange(start, end)
}

// deleteBounds resolves the byte range a Backspace/Delete should remove.
func (s *Session) deleteBounds(dir protocol.Direction) (start, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hexBytes != nil || s.selStart != s.selEnd {
		return s.selStart, s.selEnd
	}
	if dir == protocol.DirLeft {
		left := s.buf.GraphemeLeft(s.selEnd)
		if left < 0 {
			return s.selEnd, s.selEnd
		}
		return left, s.selEnd
	}
	right := s.buf.GraphemeRight(s.selEnd)
	if right < 0 {
		return s.selEnd, s.selEnd
	}
	return s.selEnd, right
}

// move collapses the selection to a single grapheme step in dir.
func (s *Session) move(dir protocol.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.stepCursor(dir)
	s.selStart, s.selEnd = pos, pos
}

// selectTo extends the active end of the selection by one grapheme step
// in dir, leaving the anchor (selStart) fixed.
func (s *Session) selectTo(dir protocol.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selEnd = s.stepCursor(dir)
}

// stepCursor computes the byte offset one grapheme/line step away from
// the active selection end, clamped to buffer bounds. Caller holds mu.
func (s *Session) stepCursor(dir protocol.Direction) int {
	cur := s.selEnd
	switch dir {
	case protocol.DirLeft:
		if left := s.buf.GraphemeLeft(cur); left >= 0 {
			return left
		}
		return cur
	case protocol.DirRight:
		if right := s.buf.GraphemeRight(cur); right >= 0 {
			return right
		}
		return cur
	case protocol.DirUp, protocol.DirDown:
		line, col := s.buf.ByteToLineCol(cur)
		target := line - 1
		if dir == protocol.DirDown {
			target = line + 1
		}
		if target < 0 || target >= s.buf.LenLines() {
			return cur
		}
		return s.buf.LineColToByte(target, col)
	default:
		return cur
	}
}

// scheduleSave debounces a call to save; the debouncer itself serializes
// overlapping invocations since bep/debounce's returned function cancels
// and reschedules rather than running concurrently (§4.9).
func (s *Session) scheduleSave() {
	if s.path == "" {
		return
	}
	s.debounced(func() {
		if err := s.save(); err != nil {
			slog.Warn("[session] debounced save failed", "error", err)
		}
	})
}

// save reads the buffer under the session lock and atomically writes it
// to path, then compacts the WAL now that the on-disk copy is durable.
//
// scheduleSave's debounced call runs on bep/debounce's own timer goroutine,
// concurrently with the actor goroutine's insert/delete; text capture must
// therefore happen under s.mu, not after releasing it, or the save path
// races with a concurrent edit's chunk mutation (§4.9).
func (s *Session) save() error {
	s.mu.Lock()
	path := s.path
	if path == "" {
		s.mu.Unlock()
		return nil
	}
	data := s.buf.Snapshot()
	s.mu.Unlock()

	if err := atomicfile.Write(path, data); err != nil {
		return err
	}
	if s.wal != nil {
		if err := s.wal.CompactIfNeeded(s.cfg.WALCompactThreshold); err != nil {
			slog.Warn("[session] wal compaction failed", "error", err)
		}
	}
	return nil
}

// flushSave runs the save synchronously regardless of any pending
// debounce timer, per §4.8's "channel closed / Close: flush pending save
// synchronously before exit". bep/debounce exposes no cancel/flush hook,
// so a timer scheduled just before Close may still fire later and save
// again; save is idempotent so this is harmless, it just costs an extra
// write.
func (s *Session) flushSave() {
	if err := s.save(); err != nil {
		slog.Warn("[session] flush save on close failed", "error", err)
	}
	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			slog.Warn("[session] wal close failed", "error", err)
		}
	}
}

// emit composes the current frame (editor or hex) and sends it on
// Frames(), blocking for capacity rather than dropping it, honoring
// ctx cancellation so Run's shutdown path never wedges on a full channel
// with no reader left.
func (s *Session) emit(ctx context.Context) {
	frame := s.composeFrame()
	select {
	case s.frames <- frame:
	case <-ctx.Done():
	}
}

// sendAck delivers the Ack for a just-applied mutation, blocking for
// channel capacity rather than dropping it, same back-pressure discipline
// as emit.
func (s *Session) sendAck(ctx context.Context, seq uint32) {
	s.mu.Lock()
	ack := protocol.Ack{Seq: seq, DocVersion: s.docVersion}
	s.mu.Unlock()
	select {
	case s.acks <- ack:
	case <-ctx.Done():
	}
}

func (s *Session) composeFrame() viewport.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hexBytes != nil {
		return viewport.ComposeHex(s.hexBytes, s.firstRow, s.cols, s.rows, s.docVersion, s.statusLeft, s.statusRight)
	}
	sel := []viewport.Selection{{Start: s.selStart, End: s.selEnd}}
	cursors := []int{s.selEnd}
	return viewport.ComposeEditor(s.buf, s.firstLine, s.cols, s.rows, s.hscroll, sel, cursors, s.docVersion, s.statusLeft, s.statusRight)
}

// SetStatus updates the status line strings shown in the next composed
// frame. Used by the CLI/acceptor glue to surface connection state.
func (s *Session) SetStatus(left, right string) {
	s.mu.Lock()
	s.statusLeft, s.statusRight = left, right
	s.mu.Unlock()
}
