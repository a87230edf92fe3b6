package tensor

import "math"

// GELU applies the Gaussian Error Linear Unit element-wise:
//
//	GELU(x) = 0.5 * x * (1 + erf(x / sqrt(2)))
//
// This is the exact form rather than the tanh approximation used by GPT-2.
func (t *Tensor) GELU() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		result.Data[i] = float32(0.5 * float64(x) * (1 + math.Erf(float64(x)/math.Sqrt2)))
	}
	return result
}

// GELU is a standalone function that applies GELU to a tensor.
func GELU(t *Tensor) *Tensor {
	return t.GELU()
}
