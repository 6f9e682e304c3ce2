package tensor

import (
	"fmt"
	"math"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if !shapesEqual(t1.Shape, t2.Shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", t1.Shape, t2.Shape)
	}
	return nil
}

// Add performs elementwise addition of two tensors with identical shapes.
func Add(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	data := make([]float64, t1.NumElems)
	for i := range data {
		data[i] = t1.Data[i] + t2.Data[i]
	}
	return NewTensor(append([]int{}, t1.Shape...), data)
}

// Sub performs elementwise subtraction of two tensors with identical shapes.
func Sub(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	data := make([]float64, t1.NumElems)
	for i := range data {
		data[i] = t1.Data[i] - t2.Data[i]
	}
	return NewTensor(append([]int{}, t1.Shape...), data)
}

// Mul performs elementwise multiplication of two tensors with identical shapes.
func Mul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	data := make([]float64, t1.NumElems)
	for i := range data {
		data[i] = t1.Data[i] * t2.Data[i]
	}
	return NewTensor(append([]int{}, t1.Shape...), data)
}

// Div performs elementwise division of two tensors with identical shapes.
func Div(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	data := make([]float64, t1.NumElems)
	for i := range data {
		if t2.Data[i] == 0 {
			return nil, fmt.Errorf("division by zero at element %d", i)
		}
		data[i] = t1.Data[i] / t2.Data[i]
	}
	return NewTensor(append([]int{}, t1.Shape...), data)
}

// Scale multiplies every element of t by s.
func Scale(t *Tensor, s float64) (*Tensor, error) {
	data := make([]float64, t.NumElems)
	for i := range data {
		data[i] = t.Data[i] * s
	}
	return NewTensor(append([]int{}, t.Shape...), data)
}

// AddRowVector adds a [cols] or [1, cols] vector to every row of a
// [rows, cols] matrix.
func AddRowVector(m, v *Tensor) (*Tensor, error) {
	if len(m.Shape) != 2 {
		return nil, fmt.Errorf("AddRowVector expects a 2D matrix, got shape %v", m.Shape)
	}
	cols := m.Shape[1]
	if v.NumElems != cols {
		return nil, fmt.Errorf("vector length %d does not match matrix columns %d", v.NumElems, cols)
	}
	data := make([]float64, m.NumElems)
	for i := 0; i < m.Shape[0]; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = m.Data[i*cols+j] + v.Data[j]
		}
	}
	return NewTensor(append([]int{}, m.Shape...), data)
}

// ReLU applies max(0, x) elementwise.
func ReLU(t *Tensor) (*Tensor, error) {
	data := make([]float64, t.NumElems)
	for i, v := range t.Data {
		if v > 0 {
			data[i] = v
		}
	}
	return NewTensor(append([]int{}, t.Shape...), data)
}

// Tanh applies the hyperbolic tangent elementwise.
func Tanh(t *Tensor) (*Tensor, error) {
	data := make([]float64, t.NumElems)
	for i, v := range t.Data {
		data[i] = math.Tanh(v)
	}
	return NewTensor(append([]int{}, t.Shape...), data)
}

// Exp applies the exponential function elementwise.
func Exp(t *Tensor) (*Tensor, error) {
	data := make([]float64, t.NumElems)
	for i, v := range t.Data {
		data[i] = math.Exp(v)
	}
	return NewTensor(append([]int{}, t.Shape...), data)
}

// Log applies the natural logarithm elementwise. Non-positive elements are an
// error: callers are expected to floor or reject their inputs first.
func Log(t *Tensor) (*Tensor, error) {
	data := make([]float64, t.NumElems)
	for i, v := range t.Data {
		if v <= 0 {
			return nil, fmt.Errorf("log of non-positive value %g at element %d", v, i)
		}
		data[i] = math.Log(v)
	}
	return NewTensor(append([]int{}, t.Shape...), data)
}

// Sum returns the sum of all elements.
func Sum(t *Tensor) float64 {
	var sum float64
	for _, v := range t.Data {
		sum += v
	}
	return sum
}

// Mean returns the arithmetic mean of all elements.
func Mean(t *Tensor) float64 {
	return Sum(t) / float64(t.NumElems)
}

// IsFinite reports whether every element is neither NaN nor infinite.
func IsFinite(t *Tensor) bool {
	for _, v := range t.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
