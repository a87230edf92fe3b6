package tokenizer

import (
	"path/filepath"
	"strings"
)

// Tokenizer is an encoder that can also turn IDs back into text.
type Tokenizer interface {
	Encoder
	Decoder
}

// Load picks the adapter from the artifact's extension: a HuggingFace
// tokenizer.json for .json, otherwise a tokenizer.model rank file.
func Load(path string) (Tokenizer, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		hf, err := LoadHF(path)
		if err != nil {
			return nil, err
		}
		return hf, nil
	}
	bpe, err := LoadBPE(path)
	if err != nil {
		return nil, err
	}
	return bpe, nil
}
