package tensor

import (
	"fmt"
)

// MatMul computes the matrix product of two 2D Float32 tensors.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("matmul requires Float32 tensors, got %s and %s", a.DType, b.DType)
	}
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got shapes %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("inner dimension mismatch: %v x %v", a.Shape, b.Shape)
	}

	m, k, n := a.Shape[0], a.Shape[1], b.Shape[1]
	aData := a.Data.([]float32)
	bData := b.Data.([]float32)
	out := make([]float32, m*n)

	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			av := aData[i*k+p]
			if av == 0 {
				continue
			}
			row := bData[p*n : (p+1)*n]
			outRow := out[i*n : (i+1)*n]
			for j, bv := range row {
				outRow[j] += av * bv
			}
		}
	}

	return NewTensor([]int{m, n}, Float32, out)
}

// Transpose returns the transpose of a 2D Float32 tensor.
func Transpose(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("transpose requires a Float32 tensor, got %s", t.DType)
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("transpose requires a 2D tensor, got shape %v", t.Shape)
	}

	rows, cols := t.Shape[0], t.Shape[1]
	data := t.Data.([]float32)
	out := make([]float32, rows*cols)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = data[i*cols+j]
		}
	}

	return NewTensor([]int{cols, rows}, Float32, out)
}
