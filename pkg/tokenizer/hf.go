package tokenizer

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HF wraps a HuggingFace tokenizer loaded from a tokenizer.json file.
type HF struct {
	tk        *tokenizer.Tokenizer
	vocabSize int
}

var (
	_ Encoder = (*HF)(nil)
	_ Decoder = (*HF)(nil)
)

// LoadHF loads a tokenizer.json file.
func LoadHF(path string) (*HF, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return NewHF(tk), nil
}

// NewHF wraps an already constructed tokenizer.
func NewHF(tk *tokenizer.Tokenizer) *HF {
	return &HF{
		tk:        tk,
		vocabSize: len(tk.GetVocab(true)),
	}
}

// Encode tokenizes text without adding special tokens.
func (h *HF) Encode(text string) ([]int, error) {
	enc, err := h.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode text: %w", err)
	}
	return enc.Ids, nil
}

// VocabSize includes added tokens.
func (h *HF) VocabSize() int { return h.vocabSize }

func (h *HF) Decode(ids []int) string {
	return h.tk.Decode(ids, true)
}
