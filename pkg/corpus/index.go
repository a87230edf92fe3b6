package corpus

import (
	"encoding/binary"
	"fmt"
	"os"
)

// IndexPath returns the sidecar index path for a corpus file.
func IndexPath(corpusPath string) string {
	return corpusPath + ".idx"
}

// Span locates one record in the token corpus.
type Span struct {
	Start uint64
	Len   uint64
}

// readIndex loads an index file. It returns (nil, nil) when the file does not
// exist.
func readIndex(path string, tokens int) ([]Span, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return parseIndex(data, tokens)
}

// parseIndex decodes index entries and checks that they tile [0, tokens) in
// order.
func parseIndex(data []byte, tokens int) ([]Span, error) {
	if len(data)%IndexEntrySize != 0 {
		return nil, fmt.Errorf("%w: index size %d is not a multiple of %d", ErrCorrupt, len(data), IndexEntrySize)
	}

	spans := make([]Span, len(data)/IndexEntrySize)
	var next uint64
	for i := range spans {
		off := i * IndexEntrySize
		s := Span{
			Start: binary.LittleEndian.Uint64(data[off : off+8]),
			Len:   binary.LittleEndian.Uint64(data[off+8 : off+16]),
		}
		if s.Start != next {
			return nil, fmt.Errorf("%w: index entry %d starts at %d, expected %d", ErrCorrupt, i, s.Start, next)
		}
		next = s.Start + s.Len
		spans[i] = s
	}
	if next != uint64(tokens) {
		return nil, fmt.Errorf("%w: index covers %d tokens, corpus has %d", ErrCorrupt, next, tokens)
	}
	return spans, nil
}
