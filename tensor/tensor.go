package tensor

import (
	"fmt"
)

// Tensor is a CPU-resident, row-major float64 tensor. It carries an optional
// gradient buffer that layers accumulate into during the backward pass and
// optimizers consume during parameter updates.
type Tensor struct {
	Shape        []int
	Strides      []int
	Data         []float64
	NumElems     int
	requiresGrad bool
	grad         *Tensor
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d)", t.Shape, t.NumElems)
}

// RequiresGrad reports whether this tensor participates in gradient updates.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// SetRequiresGrad marks the tensor as a trainable parameter.
func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient, or nil if none has been recorded.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// AccumulateGrad adds g into the tensor's gradient buffer, allocating it on
// first use.
func (t *Tensor) AccumulateGrad(g *Tensor) error {
	if !shapesEqual(t.Shape, g.Shape) {
		return fmt.Errorf("gradient shape %v does not match parameter shape %v", g.Shape, t.Shape)
	}
	if t.grad == nil {
		buf, err := Zeros(t.Shape)
		if err != nil {
			return err
		}
		t.grad = buf
	}
	for i, v := range g.Data {
		t.grad.Data[i] += v
	}
	return nil
}

// ZeroGrad clears the tensor's gradient buffer in place.
func (t *Tensor) ZeroGrad() {
	if t.grad == nil {
		return
	}
	for i := range t.grad.Data {
		t.grad.Data[i] = 0
	}
}

// ZeroGrad clears the gradient buffers of every parameter in params.
func ZeroGrad(params []*Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// SetData replaces the tensor's backing data in place. The replacement must
// have the same number of elements.
func (t *Tensor) SetData(data []float64) error {
	if len(data) != t.NumElems {
		return fmt.Errorf("data length %d does not match tensor size %d", len(data), t.NumElems)
	}
	copy(t.Data, data)
	return nil
}

// At returns the element at row i, column j of a 2D tensor.
func (t *Tensor) At(i, j int) float64 {
	return t.Data[i*t.Strides[0]+j*t.Strides[1]]
}

// Clone returns a deep copy of the tensor's shape and data. Gradient state is
// not copied.
func (t *Tensor) Clone() (*Tensor, error) {
	data := make([]float64, len(t.Data))
	copy(data, t.Data)
	return NewTensor(append([]int{}, t.Shape...), data)
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: must have at least one dimension")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
