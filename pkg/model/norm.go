package model

import (
	"fmt"
	"math"

	"tinylm/pkg/tensor"
)

// LayerNorm normalizes each vector along the last dimension and applies a
// learned scale (gamma) and shift (beta):
//
//	x_norm = (x - mean) / sqrt(var + eps)
//	output = x_norm * scale + shift
type LayerNorm struct {
	Scale *tensor.Tensor // (d_model,)
	Shift *tensor.Tensor // (d_model,)
	Eps   float32
}

// NewLayerNorm creates a LayerNorm with scale=1 and shift=0.
func NewLayerNorm(dim int, eps float32) *LayerNorm {
	return &LayerNorm{
		Scale: tensor.Full([]int{dim}, 1),
		Shift: tensor.NewTensor([]int{dim}),
		Eps:   eps,
	}
}

// Forward applies layer normalization.
//
// Input shape: (..., d_model)
// Output shape: same as input
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, fmt.Errorf("cannot apply LayerNorm to 0D tensor")
	}

	width := x.Shape[len(x.Shape)-1]
	if width != len(ln.Scale.Data) {
		return nil, fmt.Errorf("input last dimension %d doesn't match LayerNorm dimension %d",
			width, len(ln.Scale.Data))
	}

	result := tensor.NewTensor(x.Shape)
	if width == 0 {
		return result, nil
	}

	for off := 0; off < len(x.Data); off += width {
		row := x.Data[off : off+width]
		out := result.Data[off : off+width]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(width)

		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(width)

		invStd := 1 / math.Sqrt(variance+float64(ln.Eps))
		for i, v := range row {
			norm := float32((float64(v) - mean) * invStd)
			out[i] = norm*ln.Scale.Data[i] + ln.Shift.Data[i]
		}
	}

	return result, nil
}

// Parameters returns the scale and shift under the given name prefix.
func (ln *LayerNorm) Parameters(prefix string) []tensor.Param {
	return []tensor.Param{
		{Name: prefix + ".scale", Tensor: ln.Scale},
		{Name: prefix + ".shift", Tensor: ln.Shift},
	}
}
