// Package rope implements the chunked, grapheme-aware text buffer that
// backs a single editing session.
//
// Text is stored internally with LF line endings regardless of the
// on-disk EOL style; chunk boundaries always fall on UTF-8 code-point
// boundaries so byte-index operations never split a rune.
package rope

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"ghostwriter/internal/ghosterr"
)

// chunkSize bounds the byte length of an individual chunk. Chosen to keep
// insert/delete rebalancing cheap while avoiding a chunk per keystroke.
const chunkSize = 64 * 1024

// EOL identifies the on-disk line-ending convention of the buffer.
type EOL int

const (
	EOLLF EOL = iota
	EOLCRLF
)

type chunk struct {
	data []byte
}

// Buffer is a rope of bounded chunks over UTF-8 text.
//
// Buffer is not safe for concurrent use; callers (the session actor) are
// responsible for serializing access.
type Buffer struct {
	chunks      []chunk
	eol         EOL
	hasInvalid  bool
	lineOffsets []int // byte offset of the start of each line; lazily rebuilt
	linesDirty  bool
}

// FromText creates a buffer from an in-memory string. The EOL style is
// always LF; hasInvalid is always false.
func FromText(s string) *Buffer {
	b := &Buffer{eol: EOLLF}
	b.pushBytes([]byte(s))
	b.markLinesDirty()
	return b
}

// Open reads path from disk into a new Buffer.
//
// If the file is valid UTF-8, the text is used unmodified. Otherwise the
// bytes are lossily decoded with U+FFFD substitution and hasInvalid is
// set. CRLF sequences in the original bytes are normalized to LF and eol
// is recorded as EOLCRLF; otherwise eol is EOLLF.
func Open(path string) (*Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ghosterr.New(ghosterr.KindFileIO, fmt.Sprintf("open %s", path), err)
	}
	return fromBytes(raw), nil
}

func fromBytes(raw []byte) *Buffer {
	b := &Buffer{}
	text := raw
	valid := utf8.Valid(raw)
	if !valid {
		text = []byte(strings.ToValidUTF8(string(raw), string(utf8.RuneError)))
		b.hasInvalid = true
	}
	if bytesContainCRLF(text) {
		text = normalizeCRLF(text)
		b.eol = EOLCRLF
	} else {
		b.eol = EOLLF
	}
	b.pushBytes(text)
	b.markLinesDirty()
	return b
}

func bytesContainCRLF(b []byte) bool {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return true
		}
	}
	return false
}

func normalizeCRLF(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == '\r' && i+1 < len(b) && b[i+1] == '\n' {
			continue
		}
		out = append(out, b[i])
	}
	return out
}

func (b *Buffer) markLinesDirty() { b.linesDirty = true }

func (b *Buffer) pushBytes(s []byte) {
	if len(s) == 0 {
		return
	}
	if n := len(b.chunks); n > 0 {
		last := &b.chunks[n-1]
		space := chunkSize - len(last.data)
		if space > 0 {
			take := splitIndex(s, space)
			last.data = append(last.data, s[:take]...)
			s = s[take:]
		}
	}
	for len(s) > 0 {
		take := splitIndex(s, chunkSize)
		d := make([]byte, take)
		copy(d, s[:take])
		b.chunks = append(b.chunks, chunk{data: d})
		s = s[take:]
	}
}

// splitIndex returns the largest index <= maxBytes that lands on a UTF-8
// code-point boundary within s.
func splitIndex(s []byte, maxBytes int) int {
	if len(s) <= maxBytes {
		return len(s)
	}
	idx := maxBytes
	for idx > 0 && !utf8.RuneStart(s[idx]) {
		idx--
	}
	return idx
}

// LenBytes returns the total byte length of the buffer.
func (b *Buffer) LenBytes() int {
	n := 0
	for _, c := range b.chunks {
		n += len(c.data)
	}
	return n
}

// EOL returns the buffer's recorded line-ending style.
func (b *Buffer) EOL() EOL { return b.eol }

// HasInvalid reports whether the loaded file contained invalid UTF-8.
func (b *Buffer) HasInvalid() bool { return b.hasInvalid }

func (b *Buffer) findChunk(byteIdx int) (chunkIdx, offset int) {
	pos := 0
	for i, c := range b.chunks {
		if byteIdx <= pos+len(c.data) {
			return i, byteIdx - pos
		}
		pos += len(c.data)
	}
	if len(b.chunks) == 0 {
		return 0, 0
	}
	last := len(b.chunks) - 1
	return last, len(b.chunks[last].data)
}

// Insert inserts text at byteIdx. byteIdx must be <= LenBytes() and land
// on a code-point boundary; out-of-range indices are clamped to the
// buffer length. A zero-length text is a no-op.
func (b *Buffer) Insert(byteIdx int, text string) {
	if text == "" {
		return
	}
	total := b.LenBytes()
	if byteIdx < 0 {
		byteIdx = 0
	}
	if byteIdx > total {
		byteIdx = total
	}
	if len(b.chunks) == 0 {
		b.pushBytes([]byte(text))
		b.markLinesDirty()
		return
	}
	ci, off := b.findChunk(byteIdx)
	c := &b.chunks[ci]
	buf := make([]byte, 0, len(c.data)+len(text))
	buf = append(buf, c.data[:off]...)
	buf = append(buf, text...)
	buf = append(buf, c.data[off:]...)
	c.data = buf
	b.rebalance(ci)
	b.markLinesDirty()
}

// Delete removes the byte range [start, end). Out-of-range or empty
// ranges are a no-op after clamping.
func (b *Buffer) Delete(start, end int) {
	total := b.LenBytes()
	if start < 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	if start >= end {
		return
	}
	startChunk, startOff := b.findChunk(start)
	endChunk, endOff := b.findChunk(end)

	if startChunk == endChunk {
		c := &b.chunks[startChunk]
		c.data = append(c.data[:startOff:startOff], c.data[endOff:]...)
		if len(c.data) == 0 {
			b.chunks = append(b.chunks[:startChunk], b.chunks[startChunk+1:]...)
		}
		b.markLinesDirty()
		return
	}

	b.chunks[startChunk].data = b.chunks[startChunk].data[:startOff:startOff]
	b.chunks[endChunk].data = b.chunks[endChunk].data[endOff:]
	if endChunk > startChunk+1 {
		b.chunks = append(b.chunks[:startChunk+1], b.chunks[endChunk:]...)
	}
	// Merge the now-adjacent head/tail chunks if small enough.
	if startChunk+1 < len(b.chunks) && len(b.chunks[startChunk].data)+len(b.chunks[startChunk+1].data) <= chunkSize {
		merged := append(b.chunks[startChunk].data, b.chunks[startChunk+1].data...)
		b.chunks[startChunk].data = merged
		b.chunks = append(b.chunks[:startChunk+1], b.chunks[startChunk+2:]...)
	}
	// Drop an emptied head/tail chunk.
	if len(b.chunks[startChunk].data) == 0 {
		b.chunks = append(b.chunks[:startChunk], b.chunks[startChunk+1:]...)
	}
	b.markLinesDirty()
}

func (b *Buffer) rebalance(idx int) {
	for idx < len(b.chunks) && len(b.chunks[idx].data) > chunkSize {
		splitAt := splitIndex(b.chunks[idx].data, chunkSize)
		extra := make([]byte, len(b.chunks[idx].data)-splitAt)
		copy(extra, b.chunks[idx].data[splitAt:])
		b.chunks[idx].data = b.chunks[idx].data[:splitAt:splitAt]
		tail := append([]chunk{{data: extra}}, b.chunks[idx+1:]...)
		b.chunks = append(b.chunks[:idx+1], tail...)
		idx++
	}
}

// Slice returns the text in the byte range [start, end) as a string.
func (b *Buffer) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	total := b.LenBytes()
	if end > total {
		end = total
	}
	if start >= end {
		return ""
	}
	var sb strings.Builder
	sb.Grow(end - start)
	pos := 0
	for _, c := range b.chunks {
		chunkEnd := pos + len(c.data)
		if start < chunkEnd && end > pos {
			s := start - pos
			if s < 0 {
				s = 0
			}
			e := end - pos
			if e > len(c.data) {
				e = len(c.data)
			}
			sb.Write(c.data[s:e])
		}
		if chunkEnd >= end {
			break
		}
		pos = chunkEnd
	}
	return sb.String()
}

// text materializes the full buffer contents. Used by Snapshot (and so by
// SaveTo); callers needing only a slice should prefer Slice.
func (b *Buffer) text() string {
	var sb strings.Builder
	n := b.LenBytes()
	sb.Grow(n)
	for _, c := range b.chunks {
		sb.Write(c.data)
	}
	return sb.String()
}

func (b *Buffer) ensureLineIndex() {
	if !b.linesDirty {
		return
	}
	offsets := []int{0}
	pos := 0
	for _, c := range b.chunks {
		for i, by := range c.data {
			if by == '\n' {
				offsets = append(offsets, pos+i+1)
			}
		}
		pos += len(c.data)
	}
	b.lineOffsets = offsets
	b.linesDirty = false
}

// LenLines returns the number of lines in the buffer. An empty buffer has
// one (empty) line, consistent with the way a trailing line is counted
// when the text has no final newline.
func (b *Buffer) LenLines() int {
	b.ensureLineIndex()
	return len(b.lineOffsets)
}

// LineToByte returns the byte offset of the start of line (0-indexed).
// Indices beyond the last line return the buffer length.
func (b *Buffer) LineToByte(line int) int {
	b.ensureLineIndex()
	if line < 0 {
		line = 0
	}
	if line >= len(b.lineOffsets) {
		return b.LenBytes()
	}
	return b.lineOffsets[line]
}

// ByteToLineCol converts a byte index into (line, col), both 0-indexed,
// where col is a byte offset within the line.
func (b *Buffer) ByteToLineCol(byteIdx int) (line, col int) {
	b.ensureLineIndex()
	total := b.LenBytes()
	if byteIdx < 0 {
		byteIdx = 0
	}
	if byteIdx > total {
		byteIdx = total
	}
	// Binary search for the last line offset <= byteIdx.
	lo, hi := 0, len(b.lineOffsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if b.lineOffsets[mid] <= byteIdx {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, byteIdx - b.lineOffsets[lo]
}

// LineColToByte converts (line, col) back to an absolute byte index,
// clamping col to the line's length.
func (b *Buffer) LineColToByte(line, col int) int {
	b.ensureLineIndex()
	lineStart := b.LineToByte(line)
	lineLen := b.lineLenAt(line)
	if col > lineLen {
		col = lineLen
	}
	if col < 0 {
		col = 0
	}
	return lineStart + col
}

func (b *Buffer) lineLenAt(line int) int {
	start := b.LineToByte(line)
	var end int
	if line+1 < len(b.lineOffsets) {
		end = b.lineOffsets[line+1] - 1 // exclude the newline
	} else {
		end = b.LenBytes()
	}
	if end < start {
		end = start
	}
	return end - start
}

// SliceLines returns up to max line texts starting at first (trailing
// newline stripped), in order. Fewer lines are returned near EOF.
func (b *Buffer) SliceLines(first, max int) []string {
	b.ensureLineIndex()
	n := len(b.lineOffsets)
	if first >= n || max <= 0 {
		return nil
	}
	last := first + max
	if last > n {
		last = n
	}
	out := make([]string, 0, last-first)
	for i := first; i < last; i++ {
		start := b.lineOffsets[i]
		var end int
		if i+1 < n {
			end = b.lineOffsets[i+1] - 1
		} else {
			end = b.LenBytes()
		}
		if end < start {
			end = start
		}
		out = append(out, b.Slice(start, end))
	}
	return out
}

// GraphemeLeft returns the byte index of the grapheme cluster boundary to
// the left of byteIdx, or -1 at the start of the buffer.
func (b *Buffer) GraphemeLeft(byteIdx int) int {
	if byteIdx <= 0 {
		return -1
	}
	total := b.LenBytes()
	if byteIdx > total {
		byteIdx = total
	}
	// uniseg segments forward; scan back to the nearest preceding cluster
	// boundary by re-segmenting a bounded window ending at byteIdx.
	windowStart := byteIdx - 256
	if windowStart < 0 {
		windowStart = 0
	}
	window := []byte(b.Slice(windowStart, byteIdx))
	boundaries := graphemeBoundaries(window)
	target := byteIdx - windowStart
	best := -1
	for _, bd := range boundaries {
		if bd < target {
			best = bd
		}
	}
	if best == -1 {
		return 0
	}
	return windowStart + best
}

// GraphemeRight returns the byte index of the grapheme cluster boundary
// to the right of byteIdx, or -1 at the end of the buffer.
func (b *Buffer) GraphemeRight(byteIdx int) int {
	total := b.LenBytes()
	if byteIdx >= total {
		return -1
	}
	windowEnd := byteIdx + 256
	if windowEnd > total {
		windowEnd = total
	}
	window := []byte(b.Slice(byteIdx, windowEnd))
	boundaries := graphemeBoundaries(window)
	for _, bd := range boundaries {
		if bd > 0 {
			return byteIdx + bd
		}
	}
	return windowEnd
}

// graphemeBoundaries returns the byte offsets (within b, including 0 and
// len(b)) of every extended grapheme cluster boundary.
func graphemeBoundaries(b []byte) []int {
	bounds := []int{0}
	state := -1
	rest := b
	pos := 0
	for len(rest) > 0 {
		var cluster []byte
		cluster, rest, _, state = uniseg.FirstGraphemeCluster(rest, state)
		pos += len(cluster)
		bounds = append(bounds, pos)
	}
	return bounds
}

// Snapshot materializes the buffer contents (re-inserting CRLF if eol is
// EOLCRLF) as an independent byte slice. Callers sharing a Buffer across
// goroutines must take their own lock around the call to make the
// materialization mutually exclusive with concurrent edits; Buffer itself
// has no internal locking.
func (b *Buffer) Snapshot() []byte {
	s := b.text()
	if b.eol == EOLCRLF {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	return []byte(s)
}

// SaveTo materializes the buffer and writes it atomically to path. Callers
// sharing a Buffer across goroutines should prefer taking Snapshot under
// their own lock and writing it themselves, so the materialization and the
// write are both covered by the same critical section.
func (b *Buffer) SaveTo(path string, writeFn func(path string, data []byte) error) error {
	return writeFn(path, b.Snapshot())
}
