package tokenizer

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPattern splits text into pre-tokens before merging. It handles
// contractions, words, numbers, punctuation and whitespace.
//
// The LLaMA 3 pattern uses lookahead and possessive quantifiers, which Go's
// regexp does not support; this is the RE2-compatible subset.
const DefaultPattern = `'s|'t|'re|'ve|'m|'ll|'d|[^\r\n0-9A-Za-z]*[0-9A-Za-z]+|[0-9]{1,3}|[^\s0-9A-Za-z]+[\r\n]*|\s*[\r\n]+|\s+`

// BPE is a byte-pair encoder loaded from a LLaMA 3 tokenizer.model file.
//
// File format, one token per line ordered by rank:
//
//	<base64_encoded_token> <rank>
//
// A lower rank merges first. Rank r is exposed as token ID r+1 so that
// PadID never collides with a real token.
type BPE struct {
	// ranks maps token bytes to rank
	ranks map[string]int

	// tokens maps rank to token bytes; nil for unused ranks
	tokens [][]byte

	pattern *regexp.Regexp
}

var (
	_ Encoder = (*BPE)(nil)
	_ Decoder = (*BPE)(nil)
)

// LoadBPE reads a tokenizer.model file.
func LoadBPE(path string) (*BPE, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ReadBPE(file)
}

// ReadBPE parses the tokenizer.model format from r. Every single byte must be
// in the vocabulary so that any input can be encoded.
func ReadBPE(r io.Reader) (*BPE, error) {
	pattern, err := regexp.Compile(DefaultPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pre-token pattern: %w", err)
	}
	b := &BPE{ranks: make(map[string]int), pattern: pattern}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid line %d: expected 2 fields, got %d", lineNum, len(parts))
		}

		token, err := base64.StdEncoding.DecodeString(parts[0])
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 on line %d: %w", lineNum, err)
		}
		rank, err := strconv.Atoi(parts[1])
		if err != nil || rank < 0 {
			return nil, fmt.Errorf("invalid rank %q on line %d", parts[1], lineNum)
		}
		if len(token) == 0 {
			return nil, fmt.Errorf("empty token on line %d", lineNum)
		}

		if _, dup := b.ranks[string(token)]; dup {
			return nil, fmt.Errorf("duplicate token %q on line %d", token, lineNum)
		}
		for len(b.tokens) <= rank {
			b.tokens = append(b.tokens, nil)
		}
		if b.tokens[rank] != nil {
			return nil, fmt.Errorf("duplicate rank %d on line %d", rank, lineNum)
		}
		b.tokens[rank] = token
		b.ranks[string(token)] = rank
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	for i := 0; i < 256; i++ {
		if _, ok := b.ranks[string([]byte{byte(i)})]; !ok {
			return nil, fmt.Errorf("vocabulary is missing byte 0x%02x", i)
		}
	}
	return b, nil
}

// Save writes the vocabulary in rank order.
func (b *BPE) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for rank, token := range b.tokens {
		if token == nil {
			continue
		}
		line := fmt.Sprintf("%s %d\n", base64.StdEncoding.EncodeToString(token), rank)
		if _, err := writer.WriteString(line); err != nil {
			return fmt.Errorf("failed to write token %d: %w", rank, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// VocabSize is the highest rank plus two: one for the rank itself and one
// for the padding ID.
func (b *BPE) VocabSize() int { return len(b.tokens) + 1 }

// Encode pre-tokenizes text and applies merges to each chunk.
func (b *BPE) Encode(text string) ([]int, error) {
	var ids []int
	for _, chunk := range b.pattern.FindAllString(text, -1) {
		for _, rank := range b.encodeChunk(chunk) {
			ids = append(ids, rank+1)
		}
	}
	return ids, nil
}

// encodeChunk starts from single bytes and repeatedly merges the adjacent
// pair whose concatenation has the lowest rank, until no pair is in the
// vocabulary.
func (b *BPE) encodeChunk(chunk string) []int {
	if rank, ok := b.ranks[chunk]; ok {
		return []int{rank}
	}

	parts := make([]string, len(chunk))
	for i := 0; i < len(chunk); i++ {
		parts[i] = chunk[i : i+1]
	}

	for len(parts) > 1 {
		best, bestRank := -1, int(^uint(0)>>1)
		for i := 0; i < len(parts)-1; i++ {
			if rank, ok := b.ranks[parts[i]+parts[i+1]]; ok && rank < bestRank {
				best, bestRank = i, rank
			}
		}
		if best < 0 {
			break
		}
		parts[best] += parts[best+1]
		parts = append(parts[:best+1], parts[best+2:]...)
	}

	ranks := make([]int, len(parts))
	for i, p := range parts {
		ranks[i] = b.ranks[p]
	}
	return ranks
}

// Decode concatenates token bytes, skipping padding and unknown IDs.
func (b *BPE) Decode(ids []int) string {
	var result strings.Builder
	for _, id := range ids {
		rank := id - 1
		if rank < 0 || rank >= len(b.tokens) || b.tokens[rank] == nil {
			continue
		}
		result.Write(b.tokens[rank])
	}
	return result.String()
}
