// Package attention implements scaled dot-product attention, multi-head
// attention and the pre-norm decoder block built on them.
package attention

import (
	"fmt"
	"math"

	"tinylm/pkg/tensor"
)

// MaskFill is added to a score wherever the mask is 1. It is finite so a
// masked position underflows to zero weight instead of producing NaN.
const MaskFill float32 = -1e9

// ScaledDotProductAttention computes softmax(q·kᵀ/sqrt(d_k) + mask·MaskFill)·v.
//
// Input shapes:
//   - q: (batch, heads, seq_q, d_k)
//   - k: (batch, heads, seq_k, d_k)
//   - v: (batch, heads, seq_k, d_v)
//   - mask: nil, or anything that broadcasts to (batch, heads, seq_q, seq_k)
//
// Output shapes:
//   - out: (batch, heads, seq_q, d_v)
//   - weights: (batch, heads, seq_q, seq_k), each row sums to 1
func ScaledDotProductAttention(q, k, v, mask *tensor.Tensor) (out, weights *tensor.Tensor, err error) {
	if len(q.Shape) != 4 || len(k.Shape) != 4 || len(v.Shape) != 4 {
		return nil, nil, fmt.Errorf("expected 4D q, k, v, got shapes %v, %v, %v", q.Shape, k.Shape, v.Shape)
	}
	for i := 0; i < 2; i++ {
		if q.Shape[i] != k.Shape[i] || k.Shape[i] != v.Shape[i] {
			return nil, nil, fmt.Errorf("batch and head dimensions differ: %v, %v, %v", q.Shape, k.Shape, v.Shape)
		}
	}
	if k.Shape[2] != v.Shape[2] {
		return nil, nil, fmt.Errorf("key length %d doesn't match value length %d", k.Shape[2], v.Shape[2])
	}
	dk := k.Shape[3]
	if q.Shape[3] != dk {
		return nil, nil, fmt.Errorf("query depth %d doesn't match key depth %d", q.Shape[3], dk)
	}

	scores, err := tensor.MatmulTransB(q, k)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute attention scores: %w", err)
	}
	scores = scores.Scale(float32(1 / math.Sqrt(float64(dk))))

	if mask != nil {
		scores, err = tensor.AddMask(scores, mask, MaskFill)
		if err != nil {
			return nil, nil, err
		}
	}

	weights = tensor.SoftmaxLast(scores)

	out, err = tensor.Matmul(weights, v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply attention to V: %w", err)
	}
	return out, weights, nil
}
