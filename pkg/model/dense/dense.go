// Package dense implements the affine layer shared by the attention
// projections and the feed-forward network.
package dense

import (
	"fmt"
	"math"
	"math/rand"

	"tinylm/pkg/tensor"
)

// Dense computes y = x @ Weight + Bias over the last dimension of x.
type Dense struct {
	Weight *tensor.Tensor // (in, out)
	Bias   *tensor.Tensor // (out,)
}

// New creates a Dense layer with Xavier uniform weights and a zero bias.
// A nil rng falls back to a source seeded with 0 so construction stays
// reproducible.
func New(in, out int, rng *rand.Rand) (*Dense, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("dense dimensions must be positive, got in=%d out=%d", in, out)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}

	d := &Dense{
		Weight: tensor.NewTensor([]int{in, out}),
		Bias:   tensor.NewTensor([]int{out}),
	}
	XavierUniform(d.Weight, rng)
	return d, nil
}

// In returns the input width.
func (d *Dense) In() int { return d.Weight.Shape[0] }

// Out returns the output width.
func (d *Dense) Out() int { return d.Weight.Shape[1] }

// Forward applies the layer.
//
// Input shape: (..., in), rank >= 2
// Output shape: (..., out)
func (d *Dense) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 2 {
		return nil, fmt.Errorf("expected at least 2D input, got %dD", len(x.Shape))
	}
	if last := x.Shape[len(x.Shape)-1]; last != d.In() {
		return nil, fmt.Errorf("input dimension %d doesn't match dense input dimension %d", last, d.In())
	}

	y, err := tensor.Matmul(x, d.Weight)
	if err != nil {
		return nil, fmt.Errorf("failed to compute projection: %w", err)
	}
	y, err = tensor.AddBias(y, d.Bias)
	if err != nil {
		return nil, fmt.Errorf("failed to add bias: %w", err)
	}
	return y, nil
}

// Parameters returns the weight and bias under the given name prefix.
func (d *Dense) Parameters(prefix string) []tensor.Param {
	return []tensor.Param{
		{Name: prefix + ".weight", Tensor: d.Weight},
		{Name: prefix + ".bias", Tensor: d.Bias},
	}
}

// XavierUniform fills t from U[-limit, limit] with
// limit = sqrt(6 / (fan_in + fan_out)), using the last two dimensions as fans.
func XavierUniform(t *tensor.Tensor, rng *rand.Rand) {
	if len(t.Shape) < 2 {
		for i := range t.Data {
			t.Data[i] = float32(rng.Float64()*2 - 1)
		}
		return
	}

	fanIn := t.Shape[len(t.Shape)-2]
	fanOut := t.Shape[len(t.Shape)-1]
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))

	for i := range t.Data {
		t.Data[i] = float32(rng.Float64()*2*limit - limit)
	}
}

// Normal fills t from N(0, std^2).
func Normal(t *tensor.Tensor, std float32, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64()) * std
	}
}
