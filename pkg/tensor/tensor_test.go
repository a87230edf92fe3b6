package tensor

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

// TestNewTensor tests tensor creation
func TestNewTensor(t *testing.T) {
	tests := []struct {
		name     string
		shape    []int
		expected int
	}{
		{"1D", []int{5}, 5},
		{"2D", []int{3, 4}, 12},
		{"3D", []int{2, 3, 4}, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor := NewTensor(tt.shape)

			if !shapeEquals(tensor.Shape, tt.shape) {
				t.Errorf("Expected shape %v, got %v", tt.shape, tensor.Shape)
			}
			if len(tensor.Data) != tt.expected {
				t.Errorf("Expected data length %d, got %d", tt.expected, len(tensor.Data))
			}
			for i, v := range tensor.Data {
				if v != 0 {
					t.Errorf("Expected zero at index %d, got %f", i, v)
				}
			}
		})
	}
}

// TestFromSlice tests creating tensor from slice
func TestFromSlice(t *testing.T) {
	tests := []struct {
		name      string
		data      []float32
		shape     []int
		wantErr   bool
		errString string
	}{
		{name: "valid 2D", data: []float32{1, 2, 3, 4, 5, 6}, shape: []int{2, 3}},
		{name: "size mismatch", data: []float32{1, 2, 3}, shape: []int{2, 3}, wantErr: true, errString: "data size 3 does not match shape"},
		{name: "negative dimension", data: []float32{1, 2, 3, 4}, shape: []int{2, -2}, wantErr: true, errString: "invalid dimension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := FromSlice(tt.data, tt.shape)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("Expected error containing %q, got %q", tt.errString, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			// FromSlice must copy the caller's data.
			tt.data[0] = 99
			if tensor.Data[0] == 99 {
				t.Error("FromSlice should copy the input slice")
			}
		})
	}
}

// TestView tests that views share storage and validate sizes
func TestView(t *testing.T) {
	tensor, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})

	view, err := tensor.View([]int{3, 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if &view.Data[0] != &tensor.Data[0] {
		t.Error("View should share data with original tensor")
	}
	if view.Strides[0] != 2 || view.Strides[1] != 1 {
		t.Errorf("Expected strides [2 1], got %v", view.Strides)
	}

	if _, err := tensor.View([]int{4, 2}); err == nil || !strings.Contains(err.Error(), "cannot view tensor of size 6") {
		t.Errorf("Expected size mismatch error, got %v", err)
	}
}

// TestTranspose tests dimension swapping values, not only shapes
func TestTranspose(t *testing.T) {
	tests := []struct {
		name     string
		data     []float32
		shape    []int
		dim1     int
		dim2     int
		expected []float32
	}{
		{
			name:     "2D",
			data:     []float32{1, 2, 3, 4, 5, 6},
			shape:    []int{2, 3},
			dim1:     0,
			dim2:     1,
			expected: []float32{1, 4, 2, 5, 3, 6},
		},
		{
			name:     "3D outer axes",
			data:     []float32{1, 2, 3, 4, 5, 6, 7, 8},
			shape:    []int{2, 2, 2},
			dim1:     2,
			dim2:     0,
			expected: []float32{1, 5, 3, 7, 2, 6, 4, 8},
		},
		{
			name:     "4D head split",
			data:     []float32{0, 1, 2, 3, 4, 5},
			shape:    []int{1, 2, 3, 1},
			dim1:     1,
			dim2:     2,
			expected: []float32{0, 3, 1, 4, 2, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, _ := FromSlice(tt.data, tt.shape)
			transposed, err := tensor.Transpose(tt.dim1, tt.dim2)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			expectedShape := copyShape(tt.shape)
			expectedShape[tt.dim1], expectedShape[tt.dim2] = expectedShape[tt.dim2], expectedShape[tt.dim1]
			if !shapeEquals(transposed.Shape, expectedShape) {
				t.Errorf("Expected shape %v, got %v", expectedShape, transposed.Shape)
			}
			for i, v := range transposed.Data {
				if v != tt.expected[i] {
					t.Errorf("Data mismatch at index %d: expected %f, got %f", i, tt.expected[i], v)
				}
			}
		})
	}

	tensor := NewTensor([]int{2, 2})
	if _, err := tensor.Transpose(-1, 1); err == nil {
		t.Error("Expected error for invalid transpose dimension")
	}
}

// TestMatMul tests matrix multiplication
func TestMatMul(t *testing.T) {
	tests := []struct {
		name          string
		aShape        []int
		bShape        []int
		aData         []float32
		bData         []float32
		expectedData  []float32
		expectedShape []int
		errString     string
	}{
		{
			name:          "rectangular",
			aShape:        []int{2, 3},
			bShape:        []int{3, 2},
			aData:         []float32{1, 2, 3, 4, 5, 6},
			bData:         []float32{7, 8, 9, 10, 11, 12},
			expectedData:  []float32{58, 64, 139, 154},
			expectedShape: []int{2, 2},
		},
		{
			name:          "batched",
			aShape:        []int{2, 2, 2},
			bShape:        []int{2, 2, 2},
			aData:         []float32{1, 2, 3, 4, 5, 6, 7, 8},
			bData:         []float32{1, 0, 0, 1, 0, 1, 1, 0},
			expectedData:  []float32{1, 2, 3, 4, 6, 5, 8, 7},
			expectedShape: []int{2, 2, 2},
		},
		{
			name:          "3D by shared 2D",
			aShape:        []int{2, 1, 2},
			bShape:        []int{2, 3},
			aData:         []float32{1, 2, 3, 4},
			bData:         []float32{1, 0, 1, 0, 1, 1},
			expectedData:  []float32{1, 2, 3, 3, 4, 7},
			expectedShape: []int{2, 1, 3},
		},
		{
			name:          "shared 2D by 3D",
			aShape:        []int{1, 2},
			bShape:        []int{2, 2, 1},
			aData:         []float32{1, 1},
			bData:         []float32{1, 2, 3, 4},
			expectedData:  []float32{3, 7},
			expectedShape: []int{2, 1, 1},
		},
		{
			name:      "incompatible shapes",
			aShape:    []int{2, 3},
			bShape:    []int{2, 3},
			aData:     []float32{1, 2, 3, 4, 5, 6},
			bData:     []float32{1, 2, 3, 4, 5, 6},
			errString: "inner dimensions 3 and 2 don't match",
		},
		{
			name:      "1D tensor",
			aShape:    []int{4},
			bShape:    []int{4},
			aData:     []float32{1, 2, 3, 4},
			bData:     []float32{1, 2, 3, 4},
			errString: "requires at least 2D tensors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := FromSlice(tt.aData, tt.aShape)
			b, _ := FromSlice(tt.bData, tt.bShape)
			result, err := Matmul(a, b)

			if tt.errString != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("Expected error containing %q, got %v", tt.errString, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !shapeEquals(result.Shape, tt.expectedShape) {
				t.Errorf("Expected shape %v, got %v", tt.expectedShape, result.Shape)
			}
			for i, v := range result.Data {
				if !floatEquals(v, tt.expectedData[i], 1e-5) {
					t.Errorf("Data mismatch at index %d: expected %f, got %f", i, tt.expectedData[i], v)
				}
			}
		})
	}
}

// TestMatmulTransB tests multiplication against a transposed operand without copying it
func TestMatmulTransB(t *testing.T) {
	a, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{1, 2, 3})
	b, _ := FromSlice([]float32{7, 8, 9, 10, 11, 12}, []int{2, 3})

	result, err := MatmulTransB(a, b)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []float32{50, 68, 122, 167}
	if !shapeEquals(result.Shape, []int{1, 2, 2}) {
		t.Errorf("Expected shape [1 2 2], got %v", result.Shape)
	}
	for i, v := range result.Data {
		if !floatEquals(v, expected[i], 1e-4) {
			t.Errorf("Data mismatch at index %d: expected %f, got %f", i, expected[i], v)
		}
	}

	// Must agree with an explicit transpose followed by Matmul.
	bT, _ := b.Transpose(0, 1)
	reference, _ := Matmul(a, bT)
	if !result.Equals(reference, 1e-4) {
		t.Errorf("MatmulTransB %v disagrees with Matmul of transpose %v", result, reference)
	}

	bad := NewTensor([]int{2, 4})
	if _, err := MatmulTransB(a, bad); err == nil {
		t.Error("Expected inner dimension mismatch error")
	}
}

// TestAdd tests element-wise addition with broadcasting
func TestAdd(t *testing.T) {
	tests := []struct {
		name          string
		aShape        []int
		bShape        []int
		aData         []float32
		bData         []float32
		expectedData  []float32
		expectedShape []int
		errString     string
	}{
		{
			name:          "same shape",
			aShape:        []int{2, 2},
			bShape:        []int{2, 2},
			aData:         []float32{1, 2, 3, 4},
			bData:         []float32{10, 20, 30, 40},
			expectedData:  []float32{11, 22, 33, 44},
			expectedShape: []int{2, 2},
		},
		{
			name:          "broadcast row",
			aShape:        []int{2, 3},
			bShape:        []int{3},
			aData:         []float32{1, 2, 3, 4, 5, 6},
			bData:         []float32{10, 20, 30},
			expectedData:  []float32{11, 22, 33, 14, 25, 36},
			expectedShape: []int{2, 3},
		},
		{
			name:          "broadcast leading batch",
			aShape:        []int{2, 1, 2},
			bShape:        []int{1, 2, 2},
			aData:         []float32{1, 2, 3, 4},
			bData:         []float32{10, 20, 30, 40},
			expectedData:  []float32{11, 22, 31, 42, 13, 24, 33, 44},
			expectedShape: []int{2, 2, 2},
		},
		{
			name:      "incompatible shapes",
			aShape:    []int{2, 3},
			bShape:    []int{2, 4},
			aData:     []float32{1, 2, 3, 4, 5, 6},
			bData:     []float32{1, 2, 3, 4, 5, 6, 7, 8},
			errString: "cannot broadcast shapes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := FromSlice(tt.aData, tt.aShape)
			b, _ := FromSlice(tt.bData, tt.bShape)
			result, err := Add(a, b)

			if tt.errString != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("Expected error containing %q, got %v", tt.errString, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !shapeEquals(result.Shape, tt.expectedShape) {
				t.Errorf("Expected shape %v, got %v", tt.expectedShape, result.Shape)
			}
			for i, v := range result.Data {
				if !floatEquals(v, tt.expectedData[i], 1e-5) {
					t.Errorf("Data mismatch at index %d: expected %f, got %f", i, tt.expectedData[i], v)
				}
			}
		})
	}
}

// TestMul tests element-wise multiplication with a broadcast column
func TestMul(t *testing.T) {
	a, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})
	b, _ := FromSlice([]float32{2, 3}, []int{2, 1})

	result, err := Mul(a, b)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []float32{2, 4, 6, 12, 15, 18}
	for i, v := range result.Data {
		if v != expected[i] {
			t.Errorf("Data mismatch at index %d: expected %f, got %f", i, expected[i], v)
		}
	}
}

// TestAddBias tests that a bias is added to every row
func TestAddBias(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{1, 2, 3})
	bias, _ := FromSlice([]float32{0.5, -1, 2}, []int{3})

	result, err := AddBias(x, bias)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []float32{1.5, 1, 5, 4.5, 4, 8}
	for i, v := range result.Data {
		if v != expected[i] {
			t.Errorf("Data mismatch at index %d: expected %f, got %f", i, expected[i], v)
		}
	}
	if x.Data[0] != 1 {
		t.Error("AddBias modified its input")
	}

	if _, err := AddBias(x, NewTensor([]int{2})); err == nil {
		t.Error("Expected error for mismatched bias width")
	}
}

// TestSoftmax tests softmax values along both axes of a matrix
func TestSoftmax(t *testing.T) {
	tensor, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})

	t.Run("last dim", func(t *testing.T) {
		result := SoftmaxLast(tensor)
		for row := 0; row < 2; row++ {
			sum := float32(0)
			for col := 0; col < 3; col++ {
				sum += result.Get([]int{row, col})
			}
			if !floatEquals(sum, 1, 1e-5) {
				t.Errorf("Row %d should sum to 1, got %f", row, sum)
			}
		}
		// Rows differ by a constant, so their softmax must be identical.
		for col := 0; col < 3; col++ {
			if !floatEquals(result.Get([]int{0, col}), result.Get([]int{1, col}), 1e-6) {
				t.Errorf("Column %d: softmax should be shift invariant", col)
			}
		}
	})

	t.Run("first dim", func(t *testing.T) {
		result, err := Softmax(tensor, 0)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		// softmax(1, 4) = (e^-3/(1+e^-3), 1/(1+e^-3))
		low := float32(math.Exp(-3) / (1 + math.Exp(-3)))
		for col := 0; col < 3; col++ {
			if !floatEquals(result.Get([]int{0, col}), low, 1e-5) {
				t.Errorf("Expected %f at (0,%d), got %f", low, col, result.Get([]int{0, col}))
			}
			if !floatEquals(result.Get([]int{1, col}), 1-low, 1e-5) {
				t.Errorf("Expected %f at (1,%d), got %f", 1-low, col, result.Get([]int{1, col}))
			}
		}
	})

	t.Run("invalid dim", func(t *testing.T) {
		if _, err := Softmax(tensor, 5); err == nil || !strings.Contains(err.Error(), "invalid dimension") {
			t.Errorf("Expected invalid dimension error, got %v", err)
		}
	})
}

// TestSoftmaxNumericalStability tests softmax with large values and large negative masks
func TestSoftmaxNumericalStability(t *testing.T) {
	tensor, _ := FromSlice([]float32{1000, 1001, 1002, 0, -1e9, -1e9}, []int{2, 3})
	result := SoftmaxLast(tensor)

	if result.HasNonFinite() {
		t.Fatalf("Softmax produced non-finite values: %v", result.Data)
	}
	if !floatEquals(result.Data[3], 1, 1e-6) {
		t.Errorf("Expected all weight on the only unmasked position, got %f", result.Data[3])
	}
}

// TestScale tests scalar multiplication
func TestScale(t *testing.T) {
	tensor, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})
	result := tensor.Scale(2.5)

	expected := []float32{2.5, 5, 7.5, 10, 12.5, 15}
	for i, v := range result.Data {
		if !floatEquals(v, expected[i], 1e-5) {
			t.Errorf("Data mismatch at index %d: expected %f, got %f", i, expected[i], v)
		}
	}
}

// TestSliceN tests tensor slicing
func TestSliceN(t *testing.T) {
	tensor, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, []int{3, 3})

	result, err := tensor.SliceN([]int{0, 1}, []int{2, 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expected := []float32{2, 3, 5, 6}
	if !shapeEquals(result.Shape, []int{2, 2}) {
		t.Errorf("Expected shape [2 2], got %v", result.Shape)
	}
	for i, v := range result.Data {
		if v != expected[i] {
			t.Errorf("Data mismatch at index %d: expected %f, got %f", i, expected[i], v)
		}
	}

	if _, err := tensor.SliceN([]int{-1, 0}, []int{2, 2}); err == nil || !strings.Contains(err.Error(), "invalid start index") {
		t.Errorf("Expected invalid start error, got %v", err)
	}
	if _, err := tensor.SliceN([]int{0, 0}, []int{4, 2}); err == nil || !strings.Contains(err.Error(), "invalid end index") {
		t.Errorf("Expected invalid end error, got %v", err)
	}
}

// TestCausalMask tests mask polarity: 1 strictly above the diagonal, 0 elsewhere
func TestCausalMask(t *testing.T) {
	for seqLen := 1; seqLen <= 6; seqLen++ {
		t.Run(fmt.Sprintf("len=%d", seqLen), func(t *testing.T) {
			mask := CausalMask(seqLen)
			if !shapeEquals(mask.Shape, []int{seqLen, seqLen}) {
				t.Fatalf("Expected shape [%d %d], got %v", seqLen, seqLen, mask.Shape)
			}
			for row := 0; row < seqLen; row++ {
				for col := 0; col < seqLen; col++ {
					v := mask.Get([]int{row, col})
					if row >= col && v != 0 {
						t.Errorf("Mask[%d,%d] = %v, expected 0", row, col, v)
					}
					if row < col && v == 0 {
						t.Errorf("Mask[%d,%d] = %v, expected nonzero", row, col, v)
					}
				}
			}
		})
	}
}

// TestCausalMask_Idempotent tests that repeated generation is bit-identical
func TestCausalMask_Idempotent(t *testing.T) {
	a := CausalMask(7)
	b := CausalMask(7)
	for i := range a.Data {
		if math.Float32bits(a.Data[i]) != math.Float32bits(b.Data[i]) {
			t.Fatalf("Masks differ at index %d", i)
		}
	}
	if &a.Data[0] == &b.Data[0] {
		t.Error("Each call should return a fresh mask")
	}
}

// TestAddMask tests broadcasting a (seq, seq) mask over (batch, heads, seq, seq) scores
func TestAddMask(t *testing.T) {
	scores := Full([]int{2, 3, 2, 2}, 1)
	result, err := AddMask(scores, CausalMask(2), -1e9)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !shapeEquals(result.Shape, scores.Shape) {
		t.Fatalf("Expected shape %v, got %v", scores.Shape, result.Shape)
	}
	for i := 0; i < len(result.Data); i += 4 {
		block := result.Data[i : i+4]
		if block[0] != 1 || block[2] != 1 || block[3] != 1 {
			t.Errorf("Unmasked entries changed: %v", block)
		}
		if block[1] > -1e8 {
			t.Errorf("Masked entry should be a large negative number, got %f", block[1])
		}
	}

	if _, err := AddMask(NewTensor([]int{2, 2}), NewTensor([]int{3, 2, 2}), -1e9); err == nil {
		t.Error("Expected error for a mask that would grow the scores")
	}
}

// TestHasNonFinite tests NaN and Inf detection
func TestHasNonFinite(t *testing.T) {
	tensor := NewTensor([]int{3})
	if tensor.HasNonFinite() {
		t.Error("Zero tensor should be finite")
	}
	tensor.Data[1] = float32(math.Inf(1))
	if !tensor.HasNonFinite() {
		t.Error("Expected Inf to be detected")
	}
	tensor.Data[1] = float32(math.NaN())
	if !tensor.HasNonFinite() {
		t.Error("Expected NaN to be detected")
	}
}

// TestString tests string representation
func TestString(t *testing.T) {
	tensor := NewTensor([]int{2, 3})
	tensor.Data[0] = 1.5

	str := tensor.String()
	if !strings.Contains(str, "Tensor[2, 3]") {
		t.Errorf("String() should contain shape, got %q", str)
	}
	if !strings.Contains(str, "1.5") {
		t.Errorf("String() should contain data, got %q", str)
	}
}

// BenchmarkMatmul benchmarks a projection-sized batched matmul
func BenchmarkMatmul(b *testing.B) {
	x := Full([]int{4, 128, 512}, 0.01)
	w := Full([]int{512, 512}, 0.02)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Matmul(x, w); err != nil {
			b.Fatal(err)
		}
	}
}

// Helper functions

func shapeEquals(a, b []int) bool {
	return equalShapes(a, b)
}

func floatEquals(a, b, tolerance float32) bool {
	return math.Abs(float64(a-b)) < float64(tolerance)
}
