package attention

import (
	"errors"
	"fmt"
	"math/rand"

	"tinylm/pkg/model/dense"
	"tinylm/pkg/tensor"
)

// ErrInvalidHeads is returned when the model width cannot be split evenly
// across the requested number of heads.
var ErrInvalidHeads = errors.New("invalid attention heads")

// MultiHeadAttention projects queries, keys and values, attends in every head
// at once, and merges the heads through an output projection.
//
// Architecture:
//   - Q, K, V and Out are d_model -> d_model affine layers with bias
//   - Each head sees a KeyDim = ValueDim = d_model / num_heads slice
//   - All heads run in a single batched attention call
type MultiHeadAttention struct {
	NumHeads int
	DModel   int
	KeyDim   int
	ValueDim int

	Query *dense.Dense
	Key   *dense.Dense
	Value *dense.Dense
	Out   *dense.Dense
}

// NewMultiHeadAttention creates a multi-head attention layer. numHeads and
// dModel must be positive and dModel must be divisible by numHeads.
func NewMultiHeadAttention(numHeads, dModel int, rng *rand.Rand) (*MultiHeadAttention, error) {
	if numHeads <= 0 || dModel <= 0 {
		return nil, fmt.Errorf("%w: num_heads (%d) and d_model (%d) must be positive",
			ErrInvalidHeads, numHeads, dModel)
	}
	if dModel%numHeads != 0 {
		return nil, fmt.Errorf("%w: d_model (%d) must be divisible by num_heads (%d)",
			ErrInvalidHeads, dModel, numHeads)
	}

	m := &MultiHeadAttention{
		NumHeads: numHeads,
		DModel:   dModel,
		KeyDim:   dModel / numHeads,
		ValueDim: dModel / numHeads,
	}
	for _, layer := range []**dense.Dense{&m.Query, &m.Key, &m.Value, &m.Out} {
		d, err := dense.New(dModel, dModel, rng)
		if err != nil {
			return nil, err
		}
		*layer = d
	}
	return m, nil
}

// Forward computes multi-head attention and discards the attention weights.
func (m *MultiHeadAttention) Forward(q, k, v, mask *tensor.Tensor) (*tensor.Tensor, error) {
	out, _, err := m.ForwardWithWeights(q, k, v, mask)
	return out, err
}

// ForwardWithWeights computes multi-head attention.
//
// Input shapes:
//   - q: (batch, seq_q, d_model)
//   - k, v: (batch, seq_k, d_model)
//   - mask: nil, (seq_q, seq_k) or (batch, 1, seq_q, seq_k)
//
// Output shapes:
//   - out: (batch, seq_q, d_model)
//   - weights: (batch, num_heads, seq_q, seq_k)
//
// Steps:
//  1. Project q, k, v
//  2. Split heads: (batch, seq, d_model) -> (batch, heads, seq, head_dim)
//  3. Scaled dot-product attention across all heads
//  4. Merge heads: (batch, heads, seq, head_dim) -> (batch, seq, d_model)
//  5. Output projection
func (m *MultiHeadAttention) ForwardWithWeights(q, k, v, mask *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	for _, x := range []*tensor.Tensor{q, k, v} {
		if len(x.Shape) != 3 {
			return nil, nil, fmt.Errorf("expected 3D input (batch, seq, d_model), got %dD with shape %v",
				len(x.Shape), x.Shape)
		}
		if x.Shape[2] != m.DModel {
			return nil, nil, fmt.Errorf("input dimension %d doesn't match expected %d", x.Shape[2], m.DModel)
		}
	}
	if k.Shape[0] != q.Shape[0] || v.Shape[0] != q.Shape[0] {
		return nil, nil, fmt.Errorf("batch sizes differ: %d, %d, %d", q.Shape[0], k.Shape[0], v.Shape[0])
	}

	Q, err := m.project(m.Query, q, m.KeyDim)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute Q: %w", err)
	}
	K, err := m.project(m.Key, k, m.KeyDim)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute K: %w", err)
	}
	V, err := m.project(m.Value, v, m.ValueDim)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute V: %w", err)
	}

	context, weights, err := ScaledDotProductAttention(Q, K, V, mask)
	if err != nil {
		return nil, nil, err
	}

	// (batch, heads, seq, head_dim) -> (batch, seq, heads, head_dim) -> (batch, seq, d_model)
	context, err = context.Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to merge heads: %w", err)
	}
	batchSize, seqLen := context.Shape[0], context.Shape[1]
	context = context.Reshape([]int{batchSize, seqLen, m.NumHeads * m.ValueDim})

	output, err := m.Out.Forward(context)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply output projection: %w", err)
	}
	return output, weights, nil
}

// project applies a projection and splits the result into heads.
func (m *MultiHeadAttention) project(layer *dense.Dense, x *tensor.Tensor, headDim int) (*tensor.Tensor, error) {
	y, err := layer.Forward(x)
	if err != nil {
		return nil, err
	}
	batchSize, seqLen := x.Shape[0], x.Shape[1]
	y = y.Reshape([]int{batchSize, seqLen, m.NumHeads, headDim})
	return y.Transpose(1, 2)
}

// Parameters returns all four projections under the given name prefix.
func (m *MultiHeadAttention) Parameters(prefix string) []tensor.Param {
	var params []tensor.Param
	params = append(params, m.Query.Parameters(prefix+".query")...)
	params = append(params, m.Key.Parameters(prefix+".key")...)
	params = append(params, m.Value.Parameters(prefix+".value")...)
	params = append(params, m.Out.Parameters(prefix+".out")...)
	return params
}
