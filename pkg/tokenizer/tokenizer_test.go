package tokenizer

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBytes_Encode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []int
	}{
		{"empty", "", []int{}},
		{"ascii", "Hi!", []int{73, 106, 34}},
		{"nul byte", "\x00", []int{1}},
		{"high byte", "\xff", []int{256}},
		{"multibyte rune", "é", []int{196, 170}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := Bytes{}.Encode(tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(ids) != len(tt.expected) {
				t.Fatalf("Expected %d IDs, got %d", len(tt.expected), len(ids))
			}
			for i, id := range ids {
				if id != tt.expected[i] {
					t.Errorf("ID[%d] = %d, expected %d", i, id, tt.expected[i])
				}
				if id == PadID || id >= BytesVocabSize {
					t.Errorf("ID %d outside (0, %d)", id, BytesVocabSize)
				}
			}
		})
	}
}

func TestBytes_Decode(t *testing.T) {
	text := "tokens, ünïcode and \x00 bytes"
	ids, _ := Bytes{}.Encode(text)

	if got := (Bytes{}).Decode(ids); got != text {
		t.Errorf("Expected %q, got %q", text, got)
	}

	padded := append([]int{PadID, PadID}, ids...)
	padded = append(padded, 9999)
	if got := (Bytes{}).Decode(padded); got != text {
		t.Errorf("Padding and out-of-range IDs should be skipped, got %q", got)
	}
}

func TestLoadHF_MissingFile(t *testing.T) {
	if _, err := LoadHF(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing tokenizer file")
	}
}

// writeModel writes a tokenizer.model with all 256 bytes at rank = byte value
// followed by the given merges.
func writeModel(t *testing.T, merges ...string) string {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < 256; i++ {
		fmt.Fprintf(&sb, "%s %d\n", base64.StdEncoding.EncodeToString([]byte{byte(i)}), i)
	}
	for i, m := range merges {
		fmt.Fprintf(&sb, "%s %d\n", base64.StdEncoding.EncodeToString([]byte(m)), 256+i)
	}
	path := filepath.Join(t.TempDir(), "tokenizer.model")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBPE(t *testing.T) {
	tok, err := LoadBPE(writeModel(t, "ab", "abc", " abc"))
	if err != nil {
		t.Fatalf("LoadBPE failed: %v", err)
	}

	// 259 ranks plus the padding ID
	if tok.VocabSize() != 260 {
		t.Errorf("Expected vocab size 260, got %d", tok.VocabSize())
	}
}

func TestBPE_Encode(t *testing.T) {
	tok, err := LoadBPE(writeModel(t, "ab", "abc", "bc"))
	if err != nil {
		t.Fatalf("LoadBPE failed: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected []int
	}{
		{"empty", "", nil},
		{"whole chunk", "abc", []int{258}},
		{"partial merge", "abd", []int{257, 101}},
		{"single merge", "xbc", []int{121, 259}},
		{"leading space stays a byte", " abc", []int{33, 258}},
		{"two words", "ab c", []int{257, 33, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := tok.Encode(tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(ids) != len(tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, ids)
			}
			for i, id := range ids {
				if id != tt.expected[i] {
					t.Errorf("ID[%d] = %d, expected %d", i, id, tt.expected[i])
				}
				if id == PadID || id >= tok.VocabSize() {
					t.Errorf("ID %d outside (0, %d)", id, tok.VocabSize())
				}
			}
		})
	}
}

func TestBPE_RoundTrip(t *testing.T) {
	tok, err := LoadBPE(writeModel(t, "th", "he", "the", " the"))
	if err != nil {
		t.Fatalf("LoadBPE failed: %v", err)
	}

	text := "the other theme, ünïcode\n\tand 1234 digits"
	ids, _ := tok.Encode(text)
	if got := tok.Decode(ids); got != text {
		t.Errorf("Expected %q, got %q", text, got)
	}
	if got := tok.Decode(append([]int{PadID, 99999}, ids...)); got != text {
		t.Errorf("Padding and unknown IDs should be skipped, got %q", got)
	}

	// Save and reload keeps the same encoding.
	path := filepath.Join(t.TempDir(), "saved.model")
	if err := tok.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	reloaded, err := LoadBPE(path)
	if err != nil {
		t.Fatalf("LoadBPE after Save failed: %v", err)
	}
	again, _ := reloaded.Encode(text)
	if len(again) != len(ids) {
		t.Fatalf("Expected %d IDs after reload, got %d", len(ids), len(again))
	}
	for i := range ids {
		if again[i] != ids[i] {
			t.Errorf("ID[%d] = %d after reload, expected %d", i, again[i], ids[i])
		}
	}
}

func TestReadBPE_Errors(t *testing.T) {
	full := func(extra string) string {
		var sb strings.Builder
		for i := 0; i < 256; i++ {
			fmt.Fprintf(&sb, "%s %d\n", base64.StdEncoding.EncodeToString([]byte{byte(i)}), i)
		}
		return sb.String() + extra
	}

	tests := []struct {
		name  string
		input string
	}{
		{"missing bytes", "YQ== 0\n"},
		{"bad base64", full("!!! 256\n")},
		{"bad rank", full("YWI= x\n")},
		{"negative rank", full("YWI= -1\n")},
		{"extra field", full("YWI= 256 1\n")},
		{"duplicate rank", full("YWI= 255\n")},
		{"duplicate token", full("YQ== 256\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadBPE(strings.NewReader(tt.input)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tok, err := Load(writeModel(t, "ab"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := tok.(*BPE); !ok {
		t.Errorf("Expected *BPE for a .model file, got %T", tok)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing tokenizer.json")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.model")); err == nil {
		t.Error("Expected error for missing tokenizer.model")
	}
}
