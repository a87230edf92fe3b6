package tensor

import "fmt"

// CausalMask creates a (seqLen, seqLen) mask for autoregressive attention.
// Entries strictly above the diagonal are 1 (masked), entries on or below it are 0.
func CausalMask(seqLen int) *Tensor {
	mask := NewTensor([]int{seqLen, seqLen})
	for i := 0; i < seqLen; i++ {
		for j := i + 1; j < seqLen; j++ {
			mask.Data[i*seqLen+j] = 1
		}
	}
	return mask
}

// AddMask returns scores + mask*fill. The mask broadcasts against scores, so a
// (seq, seq) or (batch, 1, seq, seq) mask applies to (batch, heads, seq, seq).
// A large negative finite fill drives masked positions to ~0 after softmax
// without producing NaN.
func AddMask(scores, mask *Tensor, fill float32) (*Tensor, error) {
	if len(mask.Shape) > len(scores.Shape) {
		return nil, fmt.Errorf("mask of rank %d cannot apply to scores of rank %d",
			len(mask.Shape), len(scores.Shape))
	}
	result, err := elementWiseOp(scores, mask, func(s, m float32) float32 { return s + m*fill })
	if err != nil {
		return nil, fmt.Errorf("failed to apply mask: %w", err)
	}
	if !equalShapes(result.Shape, scores.Shape) {
		return nil, fmt.Errorf("mask shape %v would broadcast scores %v to %v",
			mask.Shape, scores.Shape, result.Shape)
	}
	return result, nil
}
