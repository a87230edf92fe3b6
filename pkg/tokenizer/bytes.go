package tokenizer

import "strings"

// BytesVocabSize is 256 byte values plus the padding ID.
const BytesVocabSize = 257

// Bytes encodes every byte b of the UTF-8 input as ID b+1, keeping ID 0 free
// for padding.
type Bytes struct{}

var (
	_ Encoder = Bytes{}
	_ Decoder = Bytes{}
)

func (Bytes) Encode(text string) ([]int, error) {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i]) + 1
	}
	return ids, nil
}

func (Bytes) VocabSize() int { return BytesVocabSize }

// Decode skips padding and IDs outside the byte range.
func (Bytes) Decode(ids []int) string {
	var sb strings.Builder
	sb.Grow(len(ids))
	for _, id := range ids {
		if id <= PadID || id >= BytesVocabSize {
			continue
		}
		sb.WriteByte(byte(id - 1))
	}
	return sb.String()
}
