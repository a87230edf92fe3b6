package tensor

import (
	"fmt"
	"math"
)

// Scale multiplies all elements by a scalar.
func Scale(t *Tensor, scalar float32) *Tensor {
	result := NewTensor(t.Shape)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * scalar
	}
	return result
}

// Scale multiplies all elements by a scalar (tensor method version).
func (t *Tensor) Scale(s float32) *Tensor {
	return Scale(t, s)
}

// Softmax applies softmax along the specified dimension.
// The maximum of each slice is subtracted first so large inputs stay finite.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}

	result := NewTensor(t.Shape)
	size := t.Shape[dim]
	if size == 0 || len(t.Data) == 0 {
		return result, nil
	}

	// Elements along dim are stride apart; slices are grouped by outer index.
	stride := t.Strides[dim]
	outer := len(t.Data) / (size * stride)

	for o := 0; o < outer; o++ {
		for in := 0; in < stride; in++ {
			base := o*size*stride + in

			maxVal := float32(math.Inf(-1))
			for i := 0; i < size; i++ {
				if v := t.Data[base+i*stride]; v > maxVal {
					maxVal = v
				}
			}

			sum := float32(0)
			for i := 0; i < size; i++ {
				e := float32(math.Exp(float64(t.Data[base+i*stride] - maxVal)))
				result.Data[base+i*stride] = e
				sum += e
			}

			for i := 0; i < size; i++ {
				result.Data[base+i*stride] /= sum
			}
		}
	}

	return result, nil
}

// SoftmaxLast applies softmax along the last dimension (convenience function).
func SoftmaxLast(t *Tensor) *Tensor {
	result, err := Softmax(t, len(t.Shape)-1)
	if err != nil {
		panic(err)
	}
	return result
}

// Add performs element-wise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp(a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs element-wise multiplication with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp(a, b, func(x, y float32) float32 { return x * y })
}

// AddBias adds a 1D bias to every vector along the last dimension of x.
func AddBias(x, bias *Tensor) (*Tensor, error) {
	if len(x.Shape) == 0 || len(bias.Shape) != 1 || bias.Shape[0] != x.Shape[len(x.Shape)-1] {
		return nil, fmt.Errorf("cannot add bias of shape %v to tensor of shape %v", bias.Shape, x.Shape)
	}
	result := x.Clone()
	width := bias.Shape[0]
	for off := 0; off < len(result.Data); off += width {
		row := result.Data[off : off+width]
		for i, b := range bias.Data {
			row[i] += b
		}
	}
	return result, nil
}

// elementWiseOp performs an element-wise operation with broadcasting.
func elementWiseOp(a, b *Tensor, op func(float32, float32) float32) (*Tensor, error) {
	// Same shape is by far the most common case (residual additions).
	if equalShapes(a.Shape, b.Shape) {
		result := NewTensor(a.Shape)
		for i := range a.Data {
			result.Data[i] = op(a.Data[i], b.Data[i])
		}
		return result, nil
	}

	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast shapes %v and %v: %w", a.Shape, b.Shape, err)
	}

	result := NewTensor(outShape)
	aStrides := broadcastStrides(a.Shape, outShape)
	bStrides := broadcastStrides(b.Shape, outShape)

	indices := make([]int, len(outShape))
	for out := range result.Data {
		aIdx, bIdx := 0, 0
		for i, v := range indices {
			aIdx += v * aStrides[i]
			bIdx += v * bStrides[i]
		}
		result.Data[out] = op(a.Data[aIdx], b.Data[bIdx])

		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < outShape[i] {
				break
			}
			indices[i] = 0
		}
	}

	return result, nil
}

// broadcastShapes computes the broadcasted shape of two shapes
func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := max(len(a), len(b))
	result := make([]int, maxLen)

	for i := 0; i < maxLen; i++ {
		dimA := 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		dimB := 1
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}

		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}
		result[maxLen-1-i] = max(dimA, dimB)
	}

	return result, nil
}

// broadcastStrides returns strides of inShape aligned to outShape, with zero
// stride on every broadcast dimension.
func broadcastStrides(inShape, outShape []int) []int {
	strides := make([]int, len(outShape))
	inStrides := computeStrides(inShape)
	diff := len(outShape) - len(inShape)
	for i := range inShape {
		if inShape[i] != 1 {
			strides[i+diff] = inStrides[i]
		}
	}
	return strides
}
