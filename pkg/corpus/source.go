// Package corpus turns a stream of text records into a flat binary file of
// token IDs and reads such files back as training windows.
//
// The corpus file is a sequence of 4-byte little-endian unsigned token IDs
// with no header and no record delimiters. An optional sidecar index
// (<corpus>.idx) records where each record starts.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// Record is one unit of raw text.
type Record struct {
	Text string `json:"text"`
}

// Source yields records until it returns io.EOF.
type Source interface {
	Next() (Record, error)
}

// Source formats accepted by OpenSource.
const (
	FormatJSONL = "jsonl"
	FormatText  = "text"
)

type jsonlSource struct {
	dec  *json.Decoder
	line int
}

// NewJSONLSource reads a stream of JSON objects with a "text" field, one per
// line, as produced by HuggingFace dataset exports.
func NewJSONLSource(r io.Reader) Source {
	return &jsonlSource{dec: json.NewDecoder(r)}
}

// jsonlRow tells a missing "text" key apart from an empty string.
type jsonlRow struct {
	Text *string `json:"text"`
}

func (s *jsonlSource) Next() (Record, error) {
	var row jsonlRow
	if err := s.dec.Decode(&row); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to decode record %d: %w", s.line+1, err)
	}
	s.line++
	if row.Text == nil {
		return Record{}, fmt.Errorf("%w: record %d has no \"text\" field", ErrMissingText, s.line)
	}
	return Record{Text: *row.Text}, nil
}

type textSource struct {
	sc *bufio.Scanner
}

// NewTextSource treats every line of r as one record.
func NewTextSource(r io.Reader) Source {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	return &textSource{sc: sc}
}

func (s *textSource) Next() (Record, error) {
	if s.sc.Scan() {
		return Record{Text: s.sc.Text()}, nil
	}
	if err := s.sc.Err(); err != nil {
		return Record{}, fmt.Errorf("failed to read line: %w", err)
	}
	return Record{}, io.EOF
}

type sliceSource struct {
	texts []string
	next  int
}

// SliceSource serves records from memory.
func SliceSource(texts []string) Source {
	return &sliceSource{texts: texts}
}

func (s *sliceSource) Next() (Record, error) {
	if s.next >= len(s.texts) {
		return Record{}, io.EOF
	}
	s.next++
	return Record{Text: s.texts[s.next-1]}, nil
}

// OpenSource opens path as a Source. A path of "-" reads standard input. An
// empty format is inferred from the extension: .jsonl and .json are JSONL,
// anything else is plain text. The returned closer must be closed by the
// caller.
func OpenSource(path, format string) (Source, io.Closer, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".json", ".ndjson":
			format = FormatJSONL
		default:
			format = FormatText
		}
	}

	var rc io.ReadCloser = io.NopCloser(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open source: %w", err)
		}
		rc = f
	}

	r := bufio.NewReaderSize(rc, 1<<20)
	switch format {
	case FormatJSONL:
		return NewJSONLSource(r), rc, nil
	case FormatText:
		return NewTextSource(r), rc, nil
	default:
		_ = rc.Close()
		return nil, nil, fmt.Errorf("unknown source format %q (want jsonl or text)", format)
	}
}
