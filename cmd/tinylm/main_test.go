package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tinylm/pkg/corpus"
	"tinylm/pkg/tensor"
	"tinylm/pkg/tokenizer"
)

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    [][]uint32
		wantErr bool
	}{
		{"5,17,42", [][]uint32{{5, 17, 42}}, false},
		{"1, 2; 3,4", [][]uint32{{1, 2}, {3, 4}}, false},
		{"1,x", nil, true},
		{"-1", nil, true},
	}

	for _, tt := range tests {
		got, err := parseIDs(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseIDs(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseIDs(%q) failed: %v", tt.in, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("parseIDs(%q) = %v, expected %v", tt.in, got, tt.want)
		}
		for i := range got {
			if len(got[i]) != len(tt.want[i]) {
				t.Fatalf("parseIDs(%q) = %v, expected %v", tt.in, got, tt.want)
			}
			for j := range got[i] {
				if got[i][j] != tt.want[i][j] {
					t.Errorf("parseIDs(%q)[%d][%d] = %d, expected %d", tt.in, i, j, got[i][j], tt.want[i][j])
				}
			}
		}
	}
}

func TestLastArgmax(t *testing.T) {
	// batch 2, seq 2, vocab 3
	logits, _ := tensor.FromSlice([]float32{
		9, 0, 0, 0, 0, 1,
		0, 0, 0, 0, 5, 2,
	}, []int{2, 2, 3})

	got := lastArgmax(logits)
	if got[0] != 2 || got[1] != 1 {
		t.Errorf("Expected [2 1], got %v", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		3 << 30: "3.0 GiB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, expected %q", in, got, want)
		}
	}
}

func TestLoadTokenizer(t *testing.T) {
	defer func(old string) { tokenizerPath = old }(tokenizerPath)

	tokenizerPath = ""
	tok, err := loadTokenizer()
	if err != nil {
		t.Fatalf("loadTokenizer failed: %v", err)
	}
	if _, ok := tok.(tokenizer.Bytes); !ok {
		t.Errorf("Expected byte-level fallback, got %T", tok)
	}

	var sb strings.Builder
	for i := 0; i < 256; i++ {
		fmt.Fprintf(&sb, "%s %d\n", base64.StdEncoding.EncodeToString([]byte{byte(i)}), i)
	}
	tokenizerPath = filepath.Join(t.TempDir(), "tokenizer.model")
	if err := os.WriteFile(tokenizerPath, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	tok, err = loadTokenizer()
	if err != nil {
		t.Fatalf("loadTokenizer failed: %v", err)
	}
	if _, ok := tok.(*tokenizer.BPE); !ok {
		t.Errorf("Expected BPE for a .model file, got %T", tok)
	}

	tokenizerPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := loadTokenizer(); err == nil {
		t.Error("Expected error for missing tokenizer.json")
	}
}

func TestInspectCmd(t *testing.T) {
	defer func(old string) { tokenizerPath = old }(tokenizerPath)
	tokenizerPath = ""

	path := filepath.Join(t.TempDir(), "corpus.bin")
	p, err := corpus.New(tokenizer.Bytes{}, corpus.Options{BatchSize: 2, BatchLogAmount: 1, Index: true})
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	if _, err := p.RunFile(context.Background(), corpus.SliceSource([]string{"hello", "world"}), path); err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}

	args := []string{"inspect", "--corpus", path, "--records", "2", "--head", "3"}
	if err := inspectCmd().Run(context.Background(), args); err != nil {
		t.Errorf("inspect failed: %v", err)
	}
}
