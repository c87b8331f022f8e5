package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// NewTensor creates a tensor from existing data. The data slice must match
// the declared dtype and hold exactly as many elements as the shape implies.
func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)

	t := &Tensor{
		Shape:    append([]int{}, shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		NumElems: numElems,
	}

	if err := t.setData(data); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float32:
		d, ok := data.([]float32)
		if !ok {
			return fmt.Errorf("expected []float32 data for Float32 tensor, got %T", data)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), t.Shape, t.NumElems)
		}
		t.Data = d
	case Int32:
		d, ok := data.([]int32)
		if !ok {
			return fmt.Errorf("expected []int32 data for Int32 tensor, got %T", data)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), t.Shape, t.NumElems)
		}
		t.Data = d
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape []int, dtype DType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)

	switch dtype {
	case Float32:
		return NewTensor(shape, dtype, make([]float32, numElems))
	case Int32:
		return NewTensor(shape, dtype, make([]int32, numElems))
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// ZerosLike creates a zero tensor with the same shape and dtype as t.
func ZerosLike(t *Tensor) (*Tensor, error) {
	return Zeros(t.Shape, t.DType)
}

// Ones creates a tensor filled with ones.
func Ones(shape []int, dtype DType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)

	switch dtype {
	case Float32:
		data := make([]float32, numElems)
		for i := range data {
			data[i] = 1
		}
		return NewTensor(shape, dtype, data)
	case Int32:
		data := make([]int32, numElems)
		for i := range data {
			data[i] = 1
		}
		return NewTensor(shape, dtype, data)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// Full creates a Float32 tensor filled with the given value.
func Full(shape []int, value float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	data := make([]float32, calculateNumElements(shape))
	for i := range data {
		data[i] = value
	}
	return NewTensor(shape, Float32, data)
}

// FromScalar creates a single-element Float32 tensor.
func FromScalar(value float64) *Tensor {
	t, _ := NewTensor([]int{1}, Float32, []float32{float32(value)})
	return t
}

// RandomNormal creates a Float32 tensor with normally distributed values.
func RandomNormal(shape []int, mean, std float32, rng *rand.Rand) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	data := make([]float32, calculateNumElements(shape))
	for i := range data {
		data[i] = mean + std*float32(rng.NormFloat64())
	}
	return NewTensor(shape, Float32, data)
}

// XavierUniform creates a Float32 tensor initialized with Xavier/Glorot
// uniform values for a layer with the given fan-in and fan-out.
func XavierUniform(shape []int, fanIn, fanOut int, rng *rand.Rand) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := make([]float32, calculateNumElements(shape))
	for i := range data {
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}
	return NewTensor(shape, Float32, data)
}
