// Package tokenizer adapts subword tokenizers to the small interface the
// corpus pipeline needs.
//
// Three implementations are provided:
//   - HF wraps a HuggingFace tokenizer.json through github.com/sugarme/tokenizer
//   - BPE loads a LLaMA 3 tokenizer.model rank file
//   - Bytes is a dependency-free byte-level encoder for tests and fallbacks
package tokenizer

// PadID is the token ID reserved for padding. Encoders never emit it for
// real text.
const PadID = 0

// Encoder turns text into token IDs in [0, VocabSize()).
type Encoder interface {
	Encode(text string) ([]int, error)
	VocabSize() int
}

// Decoder turns token IDs back into text.
type Decoder interface {
	Decode(ids []int) string
}
