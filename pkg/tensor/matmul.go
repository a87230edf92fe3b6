package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Matmul performs matrix multiplication on the last two dimensions.
// For tensors of shape (..., m, n) and (..., n, p), returns (..., m, p).
// Supports broadcasting: if one operand is 2D and the other is higher rank,
// the 2D operand is shared across every batch.
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}

	m, n := a.Shape[len(a.Shape)-2], a.Shape[len(a.Shape)-1]
	n2, p := b.Shape[len(b.Shape)-2], b.Shape[len(b.Shape)-1]
	if n != n2 {
		return nil, fmt.Errorf("incompatible shapes for matmul: %v and %v (inner dimensions %d and %d don't match)",
			a.Shape, b.Shape, n, n2)
	}

	switch {
	case len(b.Shape) == 2:
		// (..., m, n) @ (n, p): fold the batch into the rows.
		rows := shapeSize(a.Shape[:len(a.Shape)-1])
		outShape := append(copyShape(a.Shape[:len(a.Shape)-1]), p)
		result := NewTensor(outShape)
		gemm(blas.NoTrans, a.Data, rows, n, b.Data, n, p, result.Data)
		return result, nil

	case len(a.Shape) == 2:
		// (m, n) @ (..., n, p)
		batchDims := b.Shape[:len(b.Shape)-2]
		batch := shapeSize(batchDims)
		outShape := append(copyShape(batchDims), m, p)
		result := NewTensor(outShape)
		for bi := 0; bi < batch; bi++ {
			gemm(blas.NoTrans,
				a.Data, m, n,
				b.Data[bi*n*p:(bi+1)*n*p], n, p,
				result.Data[bi*m*p:(bi+1)*m*p])
		}
		return result, nil
	}

	return matmulBatched(a, b, m, n, p)
}

// matmulBatched handles (..., m, n) @ (..., n, p) with identical batch dimensions.
func matmulBatched(a, b *Tensor, m, n, p int) (*Tensor, error) {
	batchDims := a.Shape[:len(a.Shape)-2]
	if !equalShapes(batchDims, b.Shape[:len(b.Shape)-2]) {
		return nil, fmt.Errorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
	}
	batch := shapeSize(batchDims)

	resultShape := append(copyShape(batchDims), m, p)
	result := NewTensor(resultShape)

	for bi := 0; bi < batch; bi++ {
		gemm(blas.NoTrans,
			a.Data[bi*m*n:(bi+1)*m*n], m, n,
			b.Data[bi*n*p:(bi+1)*n*p], n, p,
			result.Data[bi*m*p:(bi+1)*m*p])
	}
	return result, nil
}

// MatmulTransB multiplies a by the transpose of b without materialising the
// transpose. a is (..., m, n) and b is either (p, n), shared across the batch,
// or (..., p, n) with the same batch dimensions as a. The result is (..., m, p).
func MatmulTransB(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}

	m, n := a.Shape[len(a.Shape)-2], a.Shape[len(a.Shape)-1]
	p, n2 := b.Shape[len(b.Shape)-2], b.Shape[len(b.Shape)-1]
	if n != n2 {
		return nil, fmt.Errorf("incompatible shapes for transposed matmul: %v and %v (inner dimensions %d and %d don't match)",
			a.Shape, b.Shape, n, n2)
	}

	if len(b.Shape) == 2 {
		rows := shapeSize(a.Shape[:len(a.Shape)-1])
		outShape := append(copyShape(a.Shape[:len(a.Shape)-1]), p)
		result := NewTensor(outShape)
		gemm(blas.Trans, a.Data, rows, n, b.Data, p, n, result.Data)
		return result, nil
	}

	batchDims := a.Shape[:len(a.Shape)-2]
	if !equalShapes(batchDims, b.Shape[:len(b.Shape)-2]) {
		return nil, fmt.Errorf("incompatible batch dimensions for transposed matmul: %v and %v", a.Shape, b.Shape)
	}
	batch := shapeSize(batchDims)
	result := NewTensor(append(copyShape(batchDims), m, p))
	for bi := 0; bi < batch; bi++ {
		gemm(blas.Trans,
			a.Data[bi*m*n:(bi+1)*m*n], m, n,
			b.Data[bi*p*n:(bi+1)*p*n], p, n,
			result.Data[bi*m*p:(bi+1)*m*p])
	}
	return result, nil
}

// gemm computes c = a @ op(b) for row-major matrices. bRows and bCols describe
// b as stored; with tB == blas.Trans the product uses its transpose.
func gemm(tB blas.Transpose, a []float32, aRows, aCols int, b []float32, bRows, bCols int, c []float32) {
	cCols := bCols
	if tB == blas.Trans {
		cCols = bRows
	}
	if aRows == 0 || cCols == 0 {
		return
	}
	if aCols == 0 {
		// Empty inner dimension: the product is all zeros, which c already is.
		return
	}
	blas32.Gemm(blas.NoTrans, tB, 1,
		blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: a},
		blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: b},
		0,
		blas32.General{Rows: aRows, Cols: cCols, Stride: cCols, Data: c})
}
