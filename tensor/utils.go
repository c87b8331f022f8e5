package tensor

import (
	"fmt"
)

// Clone returns a deep copy of the tensor's data. The copy keeps the dtype
// and shape but is detached from the autograd graph.
func (t *Tensor) Clone() (*Tensor, error) {
	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		return NewTensor(t.Shape, t.DType, append([]float32{}, data...))
	case Int32:
		data := t.Data.([]int32)
		return NewTensor(t.Shape, t.DType, append([]int32{}, data...))
	default:
		return nil, fmt.Errorf("unsupported dtype for clone: %s", t.DType)
	}
}

// Detach returns a copy of the tensor's current values with no gradient
// tracking.
func (t *Tensor) Detach() (*Tensor, error) {
	return t.Clone()
}

// SetData overwrites the tensor's values in place. The replacement must
// match the tensor's dtype and element count.
func (t *Tensor) SetData(data interface{}) error {
	return t.setData(data)
}

// GetFloat32Data returns the underlying float32 slice.
func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor is not Float32, got %s", t.DType)
	}
	return t.Data.([]float32), nil
}

// GetInt32Data returns the underlying int32 slice.
func (t *Tensor) GetInt32Data() ([]int32, error) {
	if t.DType != Int32 {
		return nil, fmt.Errorf("tensor is not Int32, got %s", t.DType)
	}
	return t.Data.([]int32), nil
}

// Item returns the value of a single-element Float32 tensor.
func (t *Tensor) Item() (float32, error) {
	if t.DType != Float32 {
		return 0, fmt.Errorf("item requires a Float32 tensor, got %s", t.DType)
	}
	if t.NumElems != 1 {
		return 0, fmt.Errorf("item requires a single-element tensor, got shape %v", t.Shape)
	}
	return t.Data.([]float32)[0], nil
}

// Equal reports whether two tensors have identical shape, dtype and values.
func (t *Tensor) Equal(other *Tensor) bool {
	if t.DType != other.DType || !shapesEqual(t.Shape, other.Shape) {
		return false
	}

	switch t.DType {
	case Float32:
		a := t.Data.([]float32)
		b := other.Data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case Int32:
		a := t.Data.([]int32)
		b := other.Data.([]int32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
