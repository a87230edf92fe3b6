package model

import (
	"fmt"
	"math/rand"

	"tinylm/pkg/model/dense"
	"tinylm/pkg/tensor"
)

// FeedForward is the position-wise network of a decoder block:
//
//	FC1 (d_model -> inner) -> GELU -> FC2 (inner -> d_model)
//
// Both projections carry a bias. Positions never mix.
type FeedForward struct {
	FC1 *dense.Dense
	FC2 *dense.Dense
}

// NewFeedForward creates a feed-forward layer of the given widths.
func NewFeedForward(dModel, inner int, rng *rand.Rand) (*FeedForward, error) {
	fc1, err := dense.New(dModel, inner, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create FC1: %w", err)
	}
	fc2, err := dense.New(inner, dModel, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create FC2: %w", err)
	}
	return &FeedForward{FC1: fc1, FC2: fc2}, nil
}

// Forward computes the feed-forward transformation.
//
// Input shape: (batch, seq, d_model)
// Output shape: (batch, seq, d_model)
func (ff *FeedForward) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	hidden, err := ff.FC1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to compute FC1 projection: %w", err)
	}

	output, err := ff.FC2.Forward(hidden.GELU())
	if err != nil {
		return nil, fmt.Errorf("failed to compute FC2 projection: %w", err)
	}
	return output, nil
}

// Parameters returns both projections under the given name prefix.
func (ff *FeedForward) Parameters(prefix string) []tensor.Param {
	return append(ff.FC1.Parameters(prefix+".fc1"), ff.FC2.Parameters(prefix+".fc2")...)
}
