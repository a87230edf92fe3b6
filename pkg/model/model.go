package model

import (
	"fmt"
	"math/rand"

	"tinylm/pkg/model/attention"
	"tinylm/pkg/model/dense"
	"tinylm/pkg/tensor"
)

// Model is the complete decoder-only transformer.
//
// Architecture:
//  1. Token embeddings: lookup table (vocab_size, d_model)
//  2. Positional strategy: learned table or sinusoidal encoding
//  3. Decoder blocks: stack of DecoderCount pre-norm blocks
//  4. Final layer norm
//  5. Output projection: hidden @ TokEmbᵀ, sharing the embedding table
type Model struct {
	Config     Config
	TokEmb     *tensor.Tensor // (vocab_size, d_model)
	Positional Positional
	Blocks     []*attention.DecoderBlock
	FinalNorm  *LayerNorm
}

// New validates cfg and builds a model with freshly initialized weights.
// Initialization is deterministic for a given cfg.Seed.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	eps := cfg.normEps()

	m := &Model{
		Config:    cfg,
		TokEmb:    tensor.NewTensor([]int{cfg.VocabSize, cfg.DModel}),
		Blocks:    make([]*attention.DecoderBlock, cfg.DecoderCount),
		FinalNorm: NewLayerNorm(cfg.DModel, eps),
	}
	dense.Normal(m.TokEmb, 0.02, rng)

	pos, err := NewPositional(cfg, rng)
	if err != nil {
		return nil, err
	}
	m.Positional = pos

	for i := range m.Blocks {
		attn, err := attention.NewMultiHeadAttention(cfg.NumHeads, cfg.DModel, rng)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", ErrInvalidConfig, i, err)
		}
		ff, err := NewFeedForward(cfg.DModel, cfg.FFNInnerSize, rng)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", ErrInvalidConfig, i, err)
		}
		m.Blocks[i] = attention.NewDecoderBlock(
			NewLayerNorm(cfg.DModel, eps), attn,
			NewLayerNorm(cfg.DModel, eps), ff)
	}

	return m, nil
}

// Forward computes next-token logits.
//
// Input: batch x seq token IDs, rectangular, 1 <= seq <= positional capacity
// Output shape: (batch, seq, vocab_size) - unnormalized logits
//
// Steps:
//  1. Build the causal mask, widened with the padding mask when the
//     positional strategy reports one
//  2. Embed tokens and positions
//  3. For each block: x = block.Forward(x, mask)
//  4. x = FinalNorm(x)
//  5. logits = x @ TokEmbᵀ
func (m *Model) Forward(ids [][]uint32) (*tensor.Tensor, error) {
	_, seqLen, err := checkIDs(ids)
	if err != nil {
		return nil, err
	}
	if seqLen > m.Positional.Capacity() {
		return nil, fmt.Errorf("%w: sequence length %d exceeds positional capacity %d",
			ErrShape, seqLen, m.Positional.Capacity())
	}

	embedded, err := m.Positional.Embed(m.TokEmb, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to embed tokens: %w", err)
	}

	mask := m.CausalMask(seqLen)
	if embedded.PadMask != nil {
		mask = combinePadMask(mask, embedded.PadMask)
	}

	x := embedded.Hidden
	for i, block := range m.Blocks {
		x, err = block.Forward(x, mask)
		if err != nil {
			return nil, fmt.Errorf("failed in decoder block %d: %w", i, err)
		}
	}

	x, err = m.FinalNorm.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to apply final layer norm: %w", err)
	}

	logits, err := tensor.MatmulTransB(x, m.TokEmb)
	if err != nil {
		return nil, fmt.Errorf("failed to compute output logits: %w", err)
	}
	return logits, nil
}

// CausalMask returns a fresh (seqLen, seqLen) mask with 1 strictly above the
// diagonal.
func (m *Model) CausalMask(seqLen int) *tensor.Tensor {
	return tensor.CausalMask(seqLen)
}

// combinePadMask widens a (seq, seq) causal mask to (batch, 1, seq, seq) and
// additionally masks padding keys. The diagonal is never masked so every
// query keeps at least one visible key.
func combinePadMask(causal *tensor.Tensor, pad [][]bool) *tensor.Tensor {
	seqLen := causal.Shape[0]
	out := tensor.NewTensor([]int{len(pad), 1, seqLen, seqLen})
	for b, row := range pad {
		base := b * seqLen * seqLen
		copy(out.Data[base:base+seqLen*seqLen], causal.Data)
		for i := 0; i < seqLen; i++ {
			for j, isPad := range row {
				if isPad && j != i {
					out.Data[base+i*seqLen+j] = 1
				}
			}
		}
	}
	return out
}

// Parameters lists every learnable tensor exactly once. The token embedding
// appears once even though it also serves as the output projection.
func (m *Model) Parameters() []Param {
	params := []Param{{Name: "tok_emb", Tensor: m.TokEmb}}
	params = append(params, m.Positional.Parameters()...)
	for i, block := range m.Blocks {
		params = append(params, block.Parameters(fmt.Sprintf("blocks.%d", i))...)
	}
	params = append(params, m.FinalNorm.Parameters("final_norm")...)
	return params
}

// NumParams returns the total number of learnable scalars.
func (m *Model) NumParams() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor.Size()
	}
	return total
}
