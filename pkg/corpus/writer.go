package corpus

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// TokenSize is the width of one token ID on disk.
const TokenSize = 4

// IndexEntrySize is the width of one (start, length) index entry.
const IndexEntrySize = 16

// tokenWriter appends encoded records to the corpus and, optionally, the index.
type tokenWriter struct {
	out    *bufio.Writer
	idx    *bufio.Writer
	offset uint64 // tokens written so far
	buf    [IndexEntrySize]byte
}

func newTokenWriter(out, idx io.Writer) *tokenWriter {
	w := &tokenWriter{out: bufio.NewWriterSize(out, 1<<20)}
	if idx != nil {
		w.idx = bufio.NewWriter(idx)
	}
	return w
}

// writeRecord writes one record's IDs. The caller has already range-checked them.
func (w *tokenWriter) writeRecord(ids []int) error {
	for _, id := range ids {
		binary.LittleEndian.PutUint32(w.buf[:TokenSize], uint32(id))
		if _, err := w.out.Write(w.buf[:TokenSize]); err != nil {
			return fmt.Errorf("failed to write tokens: %w", err)
		}
	}

	if w.idx != nil {
		binary.LittleEndian.PutUint64(w.buf[0:8], w.offset)
		binary.LittleEndian.PutUint64(w.buf[8:16], uint64(len(ids)))
		if _, err := w.idx.Write(w.buf[:]); err != nil {
			return fmt.Errorf("failed to write index: %w", err)
		}
	}
	w.offset += uint64(len(ids))
	return nil
}

// flush pushes buffered bytes to the underlying writers. The token file is
// flushed before the index so the index never points past written data.
func (w *tokenWriter) flush() error {
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush tokens: %w", err)
	}
	if w.idx != nil {
		if err := w.idx.Flush(); err != nil {
			return fmt.Errorf("failed to flush index: %w", err)
		}
	}
	return nil
}
