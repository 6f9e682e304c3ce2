package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MatMul computes the matrix product of two 2D tensors. The multiplication is
// delegated to gonum's BLAS-backed Dense type.
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if len(t1.Shape) != 2 || len(t2.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2D tensors, got shapes %v and %v", t1.Shape, t2.Shape)
	}
	if t1.Shape[1] != t2.Shape[0] {
		return nil, fmt.Errorf("inner dimensions do not match: %v @ %v", t1.Shape, t2.Shape)
	}

	a := mat.NewDense(t1.Shape[0], t1.Shape[1], t1.Data)
	b := mat.NewDense(t2.Shape[0], t2.Shape[1], t2.Data)

	var c mat.Dense
	c.Mul(a, b)

	rows, cols := c.Dims()
	data := make([]float64, rows*cols)
	copy(data, c.RawMatrix().Data)

	return NewTensor([]int{rows, cols}, data)
}

// Transpose returns the transpose of a 2D tensor as a new tensor with
// contiguous data.
func Transpose(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Transpose requires a 2D tensor, got shape %v", t.Shape)
	}

	rows, cols := t.Shape[0], t.Shape[1]
	data := make([]float64, t.NumElems)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[j*rows+i] = t.Data[i*cols+j]
		}
	}
	return NewTensor([]int{cols, rows}, data)
}

// SumColumns sums a [rows, cols] matrix over its rows, producing a [cols]
// tensor. Used to reduce batched bias gradients.
func SumColumns(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("SumColumns requires a 2D tensor, got shape %v", t.Shape)
	}

	rows, cols := t.Shape[0], t.Shape[1]
	data := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[j] += t.Data[i*cols+j]
		}
	}
	return NewTensor([]int{cols}, data)
}

// Reshape returns a view-like copy of t with a new shape holding the same
// number of elements.
func Reshape(t *Tensor, newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}
	if calculateNumElements(newShape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape, t.NumElems, newShape)
	}
	data := make([]float64, t.NumElems)
	copy(data, t.Data)
	return NewTensor(newShape, data)
}
