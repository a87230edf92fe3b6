package model

import (
	"fmt"
	"math"
	"math/rand"

	"tinylm/pkg/model/dense"
	"tinylm/pkg/tensor"
)

// Param names a learnable tensor.
type Param = tensor.Param

// Embedded is the output of a positional strategy.
type Embedded struct {
	// Hidden has shape (batch, seq, d_model).
	Hidden *tensor.Tensor

	// PadMask[b][s] is true when ids[b][s] is the padding ID. Nil when the
	// strategy does not track padding.
	PadMask [][]bool
}

// Positional turns token IDs into position-aware hidden states using the
// model's token embedding table.
type Positional interface {
	Kind() PositionalKind

	// Capacity is the longest sequence the strategy can encode.
	Capacity() int

	Embed(tokEmb *tensor.Tensor, ids [][]uint32) (*Embedded, error)

	// Parameters lists learnable tensors owned by the strategy.
	Parameters() []Param
}

// NewPositional builds the strategy selected by cfg.
func NewPositional(cfg Config, rng *rand.Rand) (Positional, error) {
	switch cfg.positional() {
	case PositionalSinusoidal:
		return NewSinusoidal(cfg.VocabSize, cfg.DModel)
	case PositionalLearned:
		return NewLearnedPositional(cfg.MaxPositions, cfg.DModel, rng)
	default:
		return nil, fmt.Errorf("%w: unknown positional strategy %q", ErrInvalidConfig, cfg.Positional)
	}
}

// Sinusoidal is the fixed encoding from "Attention Is All You Need", laid out
// as concat(sin, cos) rather than interleaved. Token vectors are scaled by
// sqrt(d_model) before the table is added, and padding IDs are reported.
type Sinusoidal struct {
	Table  *tensor.Tensor // (rows, d_model), never written after construction
	dModel int
}

// NewSinusoidal precomputes rows positions of width dModel. dModel must be even.
func NewSinusoidal(rows, dModel int) (*Sinusoidal, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("%w: sinusoidal table needs positive length, got %d", ErrInvalidConfig, rows)
	}
	if dModel <= 0 || dModel%2 != 0 {
		return nil, fmt.Errorf("%w: sinusoidal encoding needs an even d_model, got %d", ErrInvalidConfig, dModel)
	}

	depth := dModel / 2
	rates := make([]float64, depth)
	for i := range rates {
		rates[i] = 1 / math.Pow(10000, float64(i)/float64(depth))
	}

	table := tensor.NewTensor([]int{rows, dModel})
	for pos := 0; pos < rows; pos++ {
		row := table.Row(pos)
		for i, rate := range rates {
			angle := float64(pos) * rate
			row[i] = float32(math.Sin(angle))
			row[depth+i] = float32(math.Cos(angle))
		}
	}

	return &Sinusoidal{Table: table, dModel: dModel}, nil
}

func (s *Sinusoidal) Kind() PositionalKind { return PositionalSinusoidal }

func (s *Sinusoidal) Capacity() int { return s.Table.Shape[0] }

func (s *Sinusoidal) Parameters() []Param { return nil }

// Embed computes tok_emb[ids] * sqrt(d_model) + table[0:seq].
func (s *Sinusoidal) Embed(tokEmb *tensor.Tensor, ids [][]uint32) (*Embedded, error) {
	batch, seqLen, err := checkIDs(ids)
	if err != nil {
		return nil, err
	}
	if seqLen > s.Capacity() {
		return nil, fmt.Errorf("%w: sequence length %d exceeds sinusoidal capacity %d", ErrShape, seqLen, s.Capacity())
	}

	hidden, err := lookupEmbeddings(tokEmb, ids, s.dModel)
	if err != nil {
		return nil, err
	}

	scale := float32(math.Sqrt(float64(s.dModel)))
	for b := 0; b < batch; b++ {
		for pos := 0; pos < seqLen; pos++ {
			off := (b*seqLen + pos) * s.dModel
			vec := hidden.Data[off : off+s.dModel]
			for i, p := range s.Table.Row(pos) {
				vec[i] = vec[i]*scale + p
			}
		}
	}

	padMask := make([][]bool, batch)
	for b, row := range ids {
		padMask[b] = make([]bool, seqLen)
		for pos, id := range row {
			padMask[b][pos] = id == 0
		}
	}

	return &Embedded{Hidden: hidden, PadMask: padMask}, nil
}

// LearnedPositional adds a trained vector per absolute position. It is the
// strategy used by the assembled model by default.
type LearnedPositional struct {
	Table *tensor.Tensor // (max_positions, d_model)
}

// NewLearnedPositional creates a table initialized from N(0, 0.02).
func NewLearnedPositional(maxPositions, dModel int, rng *rand.Rand) (*LearnedPositional, error) {
	if maxPositions <= 0 || dModel <= 0 {
		return nil, fmt.Errorf("%w: learned positions need positive sizes, got %dx%d",
			ErrInvalidConfig, maxPositions, dModel)
	}
	table := tensor.NewTensor([]int{maxPositions, dModel})
	dense.Normal(table, 0.02, rng)
	return &LearnedPositional{Table: table}, nil
}

func (l *LearnedPositional) Kind() PositionalKind { return PositionalLearned }

func (l *LearnedPositional) Capacity() int { return l.Table.Shape[0] }

func (l *LearnedPositional) Parameters() []Param {
	return []Param{{Name: "pos_emb", Tensor: l.Table}}
}

// Embed computes tok_emb[ids] + table[0:seq] with no scaling.
func (l *LearnedPositional) Embed(tokEmb *tensor.Tensor, ids [][]uint32) (*Embedded, error) {
	batch, seqLen, err := checkIDs(ids)
	if err != nil {
		return nil, err
	}
	if seqLen > l.Capacity() {
		return nil, fmt.Errorf("%w: sequence length %d exceeds max positions %d", ErrShape, seqLen, l.Capacity())
	}

	dModel := l.Table.Shape[1]
	hidden, err := lookupEmbeddings(tokEmb, ids, dModel)
	if err != nil {
		return nil, err
	}

	for b := 0; b < batch; b++ {
		for pos := 0; pos < seqLen; pos++ {
			off := (b*seqLen + pos) * dModel
			vec := hidden.Data[off : off+dModel]
			for i, p := range l.Table.Row(pos) {
				vec[i] += p
			}
		}
	}

	return &Embedded{Hidden: hidden}, nil
}
