package attention

import (
	"fmt"

	"tinylm/pkg/tensor"
)

// Layer is a position-wise sub-layer such as a LayerNorm or feed-forward
// network. It is an interface so this package does not depend on the model
// package that defines them.
type Layer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters(prefix string) []tensor.Param
}

// DecoderBlock is one pre-norm decoder layer.
//
// Architecture (per block):
//  1. n1 = Norm1(x)
//  2. h = x + Attn(n1, n1, n1, mask)
//  3. n2 = Norm2(h)
//  4. out = h + FF(n2)
type DecoderBlock struct {
	Norm1 Layer
	Attn  *MultiHeadAttention
	Norm2 Layer
	FF    Layer
}

// NewDecoderBlock creates a decoder block from its sub-layers.
func NewDecoderBlock(norm1 Layer, attn *MultiHeadAttention, norm2 Layer, ff Layer) *DecoderBlock {
	return &DecoderBlock{
		Norm1: norm1,
		Attn:  attn,
		Norm2: norm2,
		FF:    ff,
	}
}

// Forward computes one decoder block.
//
// Input shapes:
//   - x: (batch, seq, d_model)
//   - mask: causal mask, (seq, seq) or (batch, 1, seq, seq)
//
// Output shape: (batch, seq, d_model)
func (b *DecoderBlock) Forward(x, mask *tensor.Tensor) (*tensor.Tensor, error) {
	normed, err := b.Norm1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to apply Norm1: %w", err)
	}

	attnOut, err := b.Attn.Forward(normed, normed, normed, mask)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention: %w", err)
	}

	h, err := tensor.Add(x, attnOut)
	if err != nil {
		return nil, fmt.Errorf("failed to add attention residual: %w", err)
	}

	normed, err = b.Norm2.Forward(h)
	if err != nil {
		return nil, fmt.Errorf("failed to apply Norm2: %w", err)
	}

	ffOut, err := b.FF.Forward(normed)
	if err != nil {
		return nil, fmt.Errorf("failed to compute feed-forward: %w", err)
	}

	output, err := tensor.Add(h, ffOut)
	if err != nil {
		return nil, fmt.Errorf("failed to add feed-forward residual: %w", err)
	}
	return output, nil
}

// Parameters returns every learnable tensor in the block under the given prefix.
func (b *DecoderBlock) Parameters(prefix string) []tensor.Param {
	var params []tensor.Param
	params = append(params, b.Norm1.Parameters(prefix+".norm1")...)
	params = append(params, b.Attn.Parameters(prefix+".attn")...)
	params = append(params, b.Norm2.Parameters(prefix+".norm2")...)
	params = append(params, b.FF.Parameters(prefix+".ffn")...)
	return params
}
