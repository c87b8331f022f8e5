package tensor

import (
	"fmt"
)

// Elementwise binary operations support three shape combinations: identical
// shapes, a single-element operand broadcast against any shape, and a 1D
// vector [C] broadcast across the rows of a 2D tensor [N, C].

func broadcastOutShape(a, b *Tensor) ([]int, error) {
	switch {
	case shapesEqual(a.Shape, b.Shape):
		return a.Shape, nil
	case a.NumElems == 1:
		return b.Shape, nil
	case b.NumElems == 1:
		return a.Shape, nil
	case len(a.Shape) == 2 && len(b.Shape) == 1 && a.Shape[1] == b.Shape[0]:
		return a.Shape, nil
	case len(a.Shape) == 1 && len(b.Shape) == 2 && b.Shape[1] == a.Shape[0]:
		return b.Shape, nil
	default:
		return nil, fmt.Errorf("shapes %v and %v are not broadcast-compatible", a.Shape, b.Shape)
	}
}

// at returns the element of t that aligns with flat index i of outShape.
func broadcastIndex(t *Tensor, i int, outShape []int) int {
	if t.NumElems == 1 {
		return 0
	}
	if shapesEqual(t.Shape, outShape) {
		return i
	}
	// Row-broadcast vector [C] over [N, C].
	return i % t.Shape[0]
}

func binaryOp(a, b *Tensor, f func(x, y float32) float32) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("elementwise ops require Float32 tensors, got %s and %s", a.DType, b.DType)
	}

	outShape, err := broadcastOutShape(a, b)
	if err != nil {
		return nil, err
	}

	aData := a.Data.([]float32)
	bData := b.Data.([]float32)
	out := make([]float32, calculateNumElements(outShape))

	for i := range out {
		out[i] = f(aData[broadcastIndex(a, i, outShape)], bData[broadcastIndex(b, i, outShape)])
	}

	return NewTensor(outShape, Float32, out)
}

// Add computes a + b elementwise.
func Add(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x + y })
}

// Sub computes a - b elementwise.
func Sub(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x - y })
}

// Mul computes a * b elementwise.
func Mul(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x * y })
}

// Div computes a / b elementwise.
func Div(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x / y })
}

// Scale computes t * s for a scalar s.
func Scale(t *Tensor, s float64) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("scale requires a Float32 tensor, got %s", t.DType)
	}

	data := t.Data.([]float32)
	out := make([]float32, len(data))
	sf := float32(s)
	for i, v := range data {
		out[i] = v * sf
	}
	return NewTensor(t.Shape, Float32, out)
}

// ReLU computes max(0, x) elementwise.
func ReLU(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("relu requires a Float32 tensor, got %s", t.DType)
	}

	data := t.Data.([]float32)
	out := make([]float32, len(data))
	for i, v := range data {
		if v > 0 {
			out[i] = v
		}
	}
	return NewTensor(t.Shape, Float32, out)
}

// Sum reduces a tensor to a single-element tensor holding the total.
func Sum(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("sum requires a Float32 tensor, got %s", t.DType)
	}

	data := t.Data.([]float32)
	var total float32
	for _, v := range data {
		total += v
	}
	return NewTensor([]int{1}, Float32, []float32{total})
}
