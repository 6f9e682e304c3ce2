package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor creates a tensor with the given shape backed by data. The data
// slice is used directly, not copied.
func NewTensor(shape []int, data []float64) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(data), shape, numElems)
	}

	return &Tensor{
		Shape:    shape,
		Strides:  calculateStrides(shape),
		Data:     data,
		NumElems: numElems,
	}, nil
}

// Zeros creates a tensor of the given shape filled with zeros.
func Zeros(shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	return NewTensor(shape, make([]float64, calculateNumElements(shape)))
}

// Ones creates a tensor of the given shape filled with ones.
func Ones(shape []int) (*Tensor, error) {
	return Full(shape, 1.0)
}

// Full creates a tensor of the given shape with every element set to value.
func Full(shape []int, value float64) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	data := make([]float64, calculateNumElements(shape))
	for i := range data {
		data[i] = value
	}
	return NewTensor(shape, data)
}

// RandomUniform creates a tensor with elements drawn uniformly from
// [-bound, bound) using rng.
func RandomUniform(shape []int, bound float64, rng *rand.Rand) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	data := make([]float64, calculateNumElements(shape))
	for i := range data {
		data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return NewTensor(shape, data)
}

// FromColumn creates an [n, 1] tensor from a column of values. The input
// slice is copied.
func FromColumn(values []float64) (*Tensor, error) {
	data := make([]float64, len(values))
	copy(data, values)
	return NewTensor([]int{len(values), 1}, data)
}
