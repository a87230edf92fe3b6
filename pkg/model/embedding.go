package model

import (
	"fmt"

	"tinylm/pkg/tensor"
)

// lookupEmbeddings gathers rows of the embedding table for a batch of IDs.
//
// embTable: (vocab_size, d_model)
// ids: batch x seq, already checked to be rectangular
// output: (batch, seq, d_model)
func lookupEmbeddings(embTable *tensor.Tensor, ids [][]uint32, dModel int) (*tensor.Tensor, error) {
	if len(embTable.Shape) != 2 || embTable.Shape[1] != dModel {
		return nil, fmt.Errorf("%w: embedding table %v does not have width %d", ErrShape, embTable.Shape, dModel)
	}
	vocabSize := embTable.Shape[0]
	batchSize, seqLen := len(ids), len(ids[0])

	output := tensor.NewTensor([]int{batchSize, seqLen, dModel})
	for b, row := range ids {
		for s, id := range row {
			if int64(id) >= int64(vocabSize) {
				return nil, fmt.Errorf("%w: token ID %d at position (%d, %d) is outside vocabulary of %d",
					ErrShape, id, b, s, vocabSize)
			}
			dst := (b*seqLen + s) * dModel
			copy(output.Data[dst:dst+dModel], embTable.Row(int(id)))
		}
	}
	return output, nil
}

// checkIDs validates that ids is a non-empty rectangular batch and returns
// its dimensions.
func checkIDs(ids [][]uint32) (batch, seqLen int, err error) {
	if len(ids) == 0 {
		return 0, 0, fmt.Errorf("%w: empty batch", ErrShape)
	}
	seqLen = len(ids[0])
	if seqLen == 0 {
		return 0, 0, fmt.Errorf("%w: zero-length sequence", ErrShape)
	}
	for b, row := range ids {
		if len(row) != seqLen {
			return 0, 0, fmt.Errorf("%w: row %d has length %d, expected %d", ErrShape, b, len(row), seqLen)
		}
	}
	return len(ids), seqLen, nil
}
