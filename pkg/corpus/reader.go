package corpus

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Reader gives random access to a token corpus.
type Reader struct {
	data    []byte
	spans   []Span
	mmapped bool
}

// Open maps a corpus file read-only. If mmap is unavailable the file is read
// into memory instead. A sibling <path>.idx is loaded when present.
// The returned reader must be closed to release any mapping.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat corpus: %w", err)
	}

	size64 := stat.Size()
	if size64 < 0 || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: size %d cannot be mapped", ErrCorrupt, size64)
	}
	size := int(size64)
	if size%TokenSize != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of %d", ErrCorrupt, size, TokenSize)
	}

	r := &Reader{}
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
		if err == nil {
			r.data, r.mmapped = data, true
		}
	}
	if !r.mmapped {
		if r.data, err = readAllAt(f, size); err != nil {
			return nil, fmt.Errorf("failed to read corpus: %w", err)
		}
	}

	spans, err := readIndex(IndexPath(path), r.Len())
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.spans = spans
	return r, nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

// Len returns the number of tokens.
func (r *Reader) Len() int { return len(r.data) / TokenSize }

// At returns token i. Like a slice index, it panics unless 0 <= i < Len().
func (r *Reader) At(i int) uint32 {
	if i < 0 || i >= r.Len() {
		panic(fmt.Sprintf("corpus: token index %d out of range for %d tokens", i, r.Len()))
	}
	return binary.LittleEndian.Uint32(r.data[i*TokenSize:])
}

// Slice copies n tokens starting at start.
func (r *Reader) Slice(start, n int) ([]uint32, error) {
	if start < 0 || n < 0 || start+n > r.Len() {
		return nil, fmt.Errorf("slice [%d, %d) out of range for %d tokens", start, start+n, r.Len())
	}
	return r.copyTokens(start, n), nil
}

// copyTokens decodes n tokens from start. The caller checks the bounds.
func (r *Reader) copyTokens(start, n int) []uint32 {
	out := make([]uint32, n)
	src := r.data[start*TokenSize : (start+n)*TokenSize]
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(src[i*TokenSize:])
	}
	return out
}

// NumRecords returns the record count, if an index was loaded.
func (r *Reader) NumRecords() (int, bool) {
	if r.spans == nil {
		return 0, false
	}
	return len(r.spans), true
}

// Record returns the token IDs of record i.
func (r *Reader) Record(i int) ([]uint32, error) {
	if r.spans == nil {
		return nil, ErrNoIndex
	}
	if i < 0 || i >= len(r.spans) {
		return nil, fmt.Errorf("record %d out of range for %d records", i, len(r.spans))
	}
	s := r.spans[i]
	return r.Slice(int(s.Start), int(s.Len))
}

// Batches walks the corpus as consecutive (batch, seqLen) windows.
func (r *Reader) Batches(batch, seqLen int) *BatchIterator {
	return &BatchIterator{r: r, batch: batch, seqLen: seqLen}
}

// Close releases the mapping, if any.
func (r *Reader) Close() error {
	if r == nil || r.data == nil {
		return nil
	}
	var err error
	if r.mmapped {
		err = unix.Munmap(r.data)
	}
	r.data = nil
	r.mmapped = false
	return err
}

// BatchIterator yields non-overlapping windows in file order. Tokens that do
// not fill a whole batch are dropped.
type BatchIterator struct {
	r      *Reader
	batch  int
	seqLen int
	pos    int
}

// Next returns the next batch, or false when fewer than batch*seqLen tokens
// remain.
func (it *BatchIterator) Next() ([][]uint32, bool) {
	if it.batch <= 0 || it.seqLen <= 0 {
		return nil, false
	}
	need := it.batch * it.seqLen
	if it.pos+need > it.r.Len() {
		return nil, false
	}
	out := make([][]uint32, it.batch)
	for b := range out {
		out[b] = it.r.copyTokens(it.pos+b*it.seqLen, it.seqLen)
	}
	it.pos += need
	return out, true
}
