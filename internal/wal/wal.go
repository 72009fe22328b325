// Package wal implements the write-ahead log that makes buffer edits
// durable between atomic saves: a sequence of framed, checksummed
// records that can be replayed against the last saved file contents to
// recover edits made after that save.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"log/slog"

	"ghostwriter/internal/ghosterr"
)

var magic = [4]byte{'G', 'W', 'A', 'L'}

const version = 1

// OpType identifies the kind of edit a Record carries.
type OpType uint8

const (
	OpInsert OpType = 1
	OpDelete OpType = 2
)

// Record is one parsed WAL entry.
type Record struct {
	DocVersion uint64
	Op         OpType
	// Insert fields.
	Index int
	Bytes []byte
	// Delete fields.
	Start int
	End   int
}

// WAL owns the append-only log file for one session.
//
// WAL is not safe for concurrent use; the session actor is the sole
// writer.
type WAL struct {
	path       string
	file       *os.File
	docVersion uint64
}

// Open opens or creates the log at path and replays it to determine the
// current document version (the doc_version of the last valid record, or
// 0 if the log is empty or absent).
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, ghosterr.New(ghosterr.KindFileIO, "open wal "+path, err)
	}
	w := &WAL{path: path, file: f}
	records, err := Replay(path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if n := len(records); n > 0 {
		w.docVersion = records[n-1].DocVersion
	}
	return w, nil
}

// DocVersion returns the document version of the most recent successful
// append, or of the last record replayed by Open when nothing has been
// appended since; it is 0 after CompactIfNeeded truncates the log.
func (w *WAL) DocVersion() uint64 { return w.docVersion }

// AppendInsert appends an Insert record for the given document version.
func (w *WAL) AppendInsert(docVersion uint64, index int, text []byte) error {
	payload := make([]byte, 8+len(text))
	binary.BigEndian.PutUint64(payload[:8], uint64(index))
	copy(payload[8:], text)
	return w.append(docVersion, OpInsert, payload)
}

// AppendDelete appends a Delete record for the given document version.
func (w *WAL) AppendDelete(docVersion uint64, start, end int) error {
	payload := make([]byte, 16)
	binary.BigEndian.PutUint64(payload[0:8], uint64(start))
	binary.BigEndian.PutUint64(payload[8:16], uint64(end))
	return w.append(docVersion, OpDelete, payload)
}

func (w *WAL) append(docVersion uint64, op OpType, payload []byte) error {
	typeSection := make([]byte, 5+len(payload))
	typeSection[0] = byte(op)
	binary.BigEndian.PutUint32(typeSection[1:5], uint32(len(payload)))
	copy(typeSection[5:], payload)

	crc := crc32.ChecksumIEEE(typeSection)

	record := make([]byte, 0, 4+1+8+len(typeSection)+4)
	record = append(record, magic[:]...)
	record = append(record, version)
	var docBuf [8]byte
	binary.BigEndian.PutUint64(docBuf[:], docVersion)
	record = append(record, docBuf[:]...)
	record = append(record, typeSection...)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	record = append(record, crcBuf[:]...)

	if _, err := w.file.Write(record); err != nil {
		return ghosterr.New(ghosterr.KindFileIO, "append wal record", err)
	}
	if err := w.file.Sync(); err != nil {
		return ghosterr.New(ghosterr.KindFileIO, "sync wal", err)
	}
	w.docVersion = docVersion
	return nil
}

// Replay reads path and parses records until the first corrupt or
// truncated record, returning everything parsed up to that point. A
// missing file replays as an empty log, not an error.
func Replay(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ghosterr.New(ghosterr.KindFileIO, "open wal for replay", err)
	}
	defer f.Close()

	var records []Record
	header := make([]byte, 4+1+8)
	typeHeader := make([]byte, 5)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			break
		}
		if string(header[0:4]) != string(magic[:]) || header[4] != version {
			break
		}
		docVersion := binary.BigEndian.Uint64(header[5:13])

		if _, err := io.ReadFull(f, typeHeader); err != nil {
			break
		}
		op := OpType(typeHeader[0])
		length := binary.BigEndian.Uint32(typeHeader[1:5])

		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			break
		}

		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(f, crcBuf); err != nil {
			break
		}
		expected := binary.BigEndian.Uint32(crcBuf)

		checked := make([]byte, 0, len(typeHeader)+len(payload))
		checked = append(checked, typeHeader...)
		checked = append(checked, payload...)
		if crc32.ChecksumIEEE(checked) != expected {
			break
		}

		rec, ok := decodeOp(docVersion, op, payload)
		if !ok {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeOp(docVersion uint64, op OpType, payload []byte) (Record, bool) {
	switch op {
	case OpInsert:
		if len(payload) < 8 {
			return Record{}, false
		}
		idx := binary.BigEndian.Uint64(payload[:8])
		text := append([]byte(nil), payload[8:]...)
		return Record{DocVersion: docVersion, Op: OpInsert, Index: int(idx), Bytes: text}, true
	case OpDelete:
		if len(payload) != 16 {
			return Record{}, false
		}
		start := binary.BigEndian.Uint64(payload[0:8])
		end := binary.BigEndian.Uint64(payload[8:16])
		return Record{DocVersion: docVersion, Op: OpDelete, Start: int(start), End: int(end)}, true
	default:
		return Record{}, false
	}
}

// CompactIfNeeded truncates the log and resets the document version to 0
// once its size reaches thresholdBytes. Compaction is threshold-only: it
// is the caller's responsibility to call this after a successful save,
// when the pre-WAL state on disk is known durable.
func (w *WAL) CompactIfNeeded(thresholdBytes int64) error {
	info, err := w.file.Stat()
	if err != nil {
		return ghosterr.New(ghosterr.KindFileIO, "stat wal", err)
	}
	if info.Size() < thresholdBytes {
		return nil
	}
	slog.Debug("[wal] compacting", "path", w.path, "size", humanize.Bytes(uint64(info.Size())))
	if err := w.file.Truncate(0); err != nil {
		return ghosterr.New(ghosterr.KindFileIO, "truncate wal", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return ghosterr.New(ghosterr.KindFileIO, "seek wal", err)
	}
	if err := w.file.Sync(); err != nil {
		return ghosterr.New(ghosterr.KindFileIO, "sync wal after compaction", err)
	}
	w.docVersion = 0
	return nil
}

// Close closes the underlying file handle.
func (w *WAL) Close() error {
	if err := w.file.Close(); err != nil {
		return ghosterr.New(ghosterr.KindFileIO, "close wal", err)
	}
	return nil
}

// String returns a short human-readable description of the record's op,
// for callers that log replay progress. It does not apply the record to
// any buffer.
func (r Record) String() string {
	switch r.Op {
	case OpInsert:
		return fmt.Sprintf("insert@%d +%dB (doc_v=%d)", r.Index, len(r.Bytes), r.DocVersion)
	case OpDelete:
		return fmt.Sprintf("delete[%d:%d) (doc_v=%d)", r.Start, r.End, r.DocVersion)
	default:
		return fmt.Sprintf("unknown op %d (doc_v=%d)", r.Op, r.DocVersion)
	}
}
