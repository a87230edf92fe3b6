// Package model assembles the decoder-only transformer.
//
// The forward pass maps a batch of token IDs to next-token logits:
//   - Token embedding lookup in a (vocab, d_model) table
//   - A positional strategy (learned table or fixed sinusoidal encoding)
//   - A stack of pre-norm decoder blocks under a causal mask
//   - A final LayerNorm
//   - Logits against the transposed token embedding table (weight tying)
package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig is returned when hyperparameters are inconsistent.
	ErrInvalidConfig = errors.New("invalid model config")

	// ErrShape is returned when forward input does not fit the model.
	ErrShape = errors.New("invalid input shape")
)

// DefaultNormEps is the LayerNorm epsilon used throughout the model.
const DefaultNormEps = 1e-6

// PositionalKind selects the positional strategy.
type PositionalKind string

const (
	PositionalLearned    PositionalKind = "learned"
	PositionalSinusoidal PositionalKind = "sinusoidal"
)

// ParsePositionalKind converts a user-facing name into a PositionalKind.
func ParsePositionalKind(s string) (PositionalKind, error) {
	switch k := PositionalKind(strings.ToLower(strings.TrimSpace(s))); k {
	case PositionalLearned, PositionalSinusoidal:
		return k, nil
	case "":
		return PositionalLearned, nil
	default:
		return "", fmt.Errorf("%w: unknown positional strategy %q", ErrInvalidConfig, s)
	}
}

// Config holds the model hyperparameters.
type Config struct {
	// VocabSize is the number of token IDs; ID 0 is reserved for padding.
	VocabSize int `yaml:"vocab_size" json:"vocab_size"`

	// DModel is the hidden width carried through every block.
	DModel int `yaml:"d_model" json:"d_model"`

	// NumHeads must divide DModel.
	NumHeads int `yaml:"num_heads" json:"num_heads"`

	// FFNInnerSize is the feed-forward expansion width.
	FFNInnerSize int `yaml:"ffn_inner_size" json:"ffn_inner_size"`

	// DecoderCount is the number of decoder blocks.
	DecoderCount int `yaml:"decoder_count" json:"decoder_count"`

	// MaxPositions bounds the sequence length for the learned strategy.
	MaxPositions int `yaml:"max_positions" json:"max_positions"`

	Positional PositionalKind `yaml:"positional" json:"positional"`

	// Seed drives weight initialization.
	Seed int64 `yaml:"seed" json:"seed"`

	// NormEps is the LayerNorm epsilon; zero means DefaultNormEps.
	NormEps float32 `yaml:"norm_eps" json:"norm_eps"`
}

// DefaultConfig returns a mid-sized configuration.
func DefaultConfig() Config {
	return Config{
		VocabSize:    32000,
		DModel:       512,
		NumHeads:     8,
		FFNInnerSize: 2048,
		DecoderCount: 6,
		MaxPositions: 2048,
		Positional:   PositionalLearned,
		NormEps:      DefaultNormEps,
	}
}

// Validate checks that the configuration describes a buildable model.
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("%w: vocab_size must be positive, got %d", ErrInvalidConfig, c.VocabSize)
	case c.DModel <= 0:
		return fmt.Errorf("%w: d_model must be positive, got %d", ErrInvalidConfig, c.DModel)
	case c.NumHeads <= 0:
		return fmt.Errorf("%w: num_heads must be positive, got %d", ErrInvalidConfig, c.NumHeads)
	case c.DModel%c.NumHeads != 0:
		return fmt.Errorf("%w: d_model (%d) must be divisible by num_heads (%d)",
			ErrInvalidConfig, c.DModel, c.NumHeads)
	case c.FFNInnerSize <= 0:
		return fmt.Errorf("%w: ffn_inner_size must be positive, got %d", ErrInvalidConfig, c.FFNInnerSize)
	case c.DecoderCount <= 0:
		return fmt.Errorf("%w: decoder_count must be positive, got %d", ErrInvalidConfig, c.DecoderCount)
	case c.NormEps < 0:
		return fmt.Errorf("%w: norm_eps must not be negative, got %g", ErrInvalidConfig, c.NormEps)
	}

	switch c.positional() {
	case PositionalLearned:
		if c.MaxPositions <= 0 {
			return fmt.Errorf("%w: max_positions must be positive, got %d", ErrInvalidConfig, c.MaxPositions)
		}
	case PositionalSinusoidal:
		if c.DModel%2 != 0 {
			return fmt.Errorf("%w: sinusoidal encoding needs an even d_model, got %d", ErrInvalidConfig, c.DModel)
		}
	default:
		return fmt.Errorf("%w: unknown positional strategy %q", ErrInvalidConfig, c.Positional)
	}
	return nil
}

// HeadDim returns the per-head width.
func (c Config) HeadDim() int {
	return c.DModel / c.NumHeads
}

func (c Config) positional() PositionalKind {
	if c.Positional == "" {
		return PositionalLearned
	}
	return c.Positional
}

func (c Config) normEps() float32 {
	if c.NormEps == 0 {
		return DefaultNormEps
	}
	return c.NormEps
}
