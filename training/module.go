package training

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-cann/tensor"
)

// Mode selects between training-time and inference-time behavior. It is
// passed explicitly on every forward call so that layers such as Dropout
// never rely on hidden object state to decide how to behave.
type Mode int

const (
	// Train enables dropout and any other training-only behavior.
	Train Mode = iota
	// Eval disables training-only behavior for validation and inference.
	Eval
)

func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Eval:
		return "eval"
	default:
		return "unknown"
	}
}

// Module is a network layer with an explicit forward and backward pass.
// Backward must be called after a Forward in Train mode on the same input;
// layers cache whatever they need from the forward pass, so a module instance
// must not be shared across concurrent training loops.
type Module interface {
	Forward(input *tensor.Tensor, mode Mode) (*tensor.Tensor, error)
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Initializer selects the weight initialization scheme for a Linear layer.
type Initializer int

const (
	// Xavier draws weights from the Glorot uniform distribution.
	Xavier Initializer = iota
	// ZeroInit sets weights and bias to exactly zero. The output layer of a
	// CANN uses this so the untrained correction factor is exactly one.
	ZeroInit
)

// Linear implements a fully connected layer: y = xW + b.
type Linear struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
	input  *tensor.Tensor // cached for backward
}

// NewLinear creates a new Linear layer. With Xavier initialization,
// W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))) and the bias
// starts at zero.
func NewLinear(inputSize, outputSize int, bias bool, init Initializer, rng *rand.Rand) (*Linear, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("layer sizes must be positive, got %d -> %d", inputSize, outputSize)
	}

	var weight *tensor.Tensor
	var err error

	switch init {
	case Xavier:
		bound := math.Sqrt(6.0 / float64(inputSize+outputSize))
		weight, err = tensor.RandomUniform([]int{inputSize, outputSize}, bound, rng)
	case ZeroInit:
		weight, err = tensor.Zeros([]int{inputSize, outputSize})
	default:
		return nil, fmt.Errorf("unknown initializer: %d", init)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	linear := &Linear{weight: weight}

	if bias {
		biasT, err := tensor.Zeros([]int{outputSize})
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		linear.bias = biasT
	}

	return linear, nil
}

// Forward performs the forward pass: y = xW + b.
func (l *Linear) Forward(input *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("Linear layer expects 2D input [batch_size, input_size], got shape %v", input.Shape)
	}
	if input.Shape[1] != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], input.Shape[1])
	}

	l.input = input

	output, err := tensor.MatMul(input, l.weight)
	if err != nil {
		return nil, fmt.Errorf("matrix multiplication failed: %v", err)
	}

	if l.bias != nil {
		output, err = tensor.AddRowVector(output, l.bias)
		if err != nil {
			return nil, fmt.Errorf("bias addition failed: %v", err)
		}
	}

	return output, nil
}

// Backward accumulates parameter gradients and returns the gradient with
// respect to the layer input.
func (l *Linear) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, fmt.Errorf("Backward called before Forward")
	}

	// dL/dW = x^T @ gradOut
	inputT, err := tensor.Transpose(l.input)
	if err != nil {
		return nil, fmt.Errorf("input transpose failed: %v", err)
	}
	gradW, err := tensor.MatMul(inputT, gradOut)
	if err != nil {
		return nil, fmt.Errorf("weight gradient failed: %v", err)
	}
	if err := l.weight.AccumulateGrad(gradW); err != nil {
		return nil, fmt.Errorf("weight gradient accumulation failed: %v", err)
	}

	// dL/db = column sums of gradOut
	if l.bias != nil {
		gradB, err := tensor.SumColumns(gradOut)
		if err != nil {
			return nil, fmt.Errorf("bias gradient failed: %v", err)
		}
		if err := l.bias.AccumulateGrad(gradB); err != nil {
			return nil, fmt.Errorf("bias gradient accumulation failed: %v", err)
		}
	}

	// dL/dx = gradOut @ W^T
	weightT, err := tensor.Transpose(l.weight)
	if err != nil {
		return nil, fmt.Errorf("weight transpose failed: %v", err)
	}
	gradIn, err := tensor.MatMul(gradOut, weightT)
	if err != nil {
		return nil, fmt.Errorf("input gradient failed: %v", err)
	}

	return gradIn, nil
}

// Parameters returns the trainable parameters.
func (l *Linear) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{l.weight}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

// ReLU implements the rectified linear activation.
type ReLU struct {
	input *tensor.Tensor
}

// NewReLU creates a new ReLU activation module.
func NewReLU() *ReLU {
	return &ReLU{}
}

// Forward applies max(0, x) elementwise.
func (r *ReLU) Forward(input *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	r.input = input
	return tensor.ReLU(input)
}

// Backward zeroes the gradient wherever the forward input was non-positive.
func (r *ReLU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if r.input == nil {
		return nil, fmt.Errorf("Backward called before Forward")
	}

	grad, err := gradOut.Clone()
	if err != nil {
		return nil, err
	}
	for i, v := range r.input.Data {
		if v <= 0 {
			grad.Data[i] = 0
		}
	}
	return grad, nil
}

// Parameters returns an empty slice: ReLU has no parameters.
func (r *ReLU) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Tanh implements the hyperbolic tangent activation.
type Tanh struct {
	output *tensor.Tensor
}

// NewTanh creates a new Tanh activation module.
func NewTanh() *Tanh {
	return &Tanh{}
}

// Forward applies tanh elementwise.
func (th *Tanh) Forward(input *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	out, err := tensor.Tanh(input)
	if err != nil {
		return nil, err
	}
	th.output = out
	return out, nil
}

// Backward applies the chain rule: d tanh(x)/dx = 1 - tanh(x)^2.
func (th *Tanh) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if th.output == nil {
		return nil, fmt.Errorf("Backward called before Forward")
	}

	grad, err := gradOut.Clone()
	if err != nil {
		return nil, err
	}
	for i, y := range th.output.Data {
		grad.Data[i] *= 1.0 - y*y
	}
	return grad, nil
}

// Parameters returns an empty slice: Tanh has no parameters.
func (th *Tanh) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Dropout implements inverted dropout. Units are zeroed with probability p
// during Train-mode forwards and kept elements are scaled by 1/(1-p); in Eval
// mode the layer is the identity.
type Dropout struct {
	p    float64
	rng  *rand.Rand
	mask []float64 // nil when the last forward ran in Eval mode
}

// NewDropout creates a new Dropout layer with drop probability p.
func NewDropout(p float64, rng *rand.Rand) (*Dropout, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("dropout probability must be in [0, 1), got %g", p)
	}
	return &Dropout{p: p, rng: rng}, nil
}

// Forward applies dropout in Train mode and is the identity in Eval mode.
func (d *Dropout) Forward(input *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	if mode == Eval || d.p == 0 {
		d.mask = nil
		return input, nil
	}

	scale := 1.0 / (1.0 - d.p)
	d.mask = make([]float64, input.NumElems)

	data := make([]float64, input.NumElems)
	for i, v := range input.Data {
		if d.rng.Float64() >= d.p {
			d.mask[i] = scale
			data[i] = v * scale
		}
	}
	return tensor.NewTensor(append([]int{}, input.Shape...), data)
}

// Backward applies the mask saved by the last Train-mode forward.
func (d *Dropout) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if d.mask == nil {
		return gradOut, nil
	}
	if len(d.mask) != gradOut.NumElems {
		return nil, fmt.Errorf("dropout mask size %d does not match gradient size %d", len(d.mask), gradOut.NumElems)
	}

	grad, err := gradOut.Clone()
	if err != nil {
		return nil, err
	}
	for i := range grad.Data {
		grad.Data[i] *= d.mask[i]
	}
	return grad, nil
}

// Parameters returns an empty slice: Dropout has no parameters.
func (d *Dropout) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Sequential chains modules together, forwarding in order and backpropagating
// in reverse.
type Sequential struct {
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Forward passes input through all modules in sequence.
func (s *Sequential) Forward(input *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	output := input
	var err error

	for i, module := range s.modules {
		output, err = module.Forward(output, mode)
		if err != nil {
			return nil, fmt.Errorf("module %d forward failed: %v", i, err)
		}
	}

	return output, nil
}

// Backward propagates the gradient through all modules in reverse order.
func (s *Sequential) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	grad := gradOut
	var err error

	for i := len(s.modules) - 1; i >= 0; i-- {
		grad, err = s.modules[i].Backward(grad)
		if err != nil {
			return nil, fmt.Errorf("module %d backward failed: %v", i, err)
		}
	}

	return grad, nil
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential) Parameters() []*tensor.Tensor {
	var allParams []*tensor.Tensor
	for _, module := range s.modules {
		allParams = append(allParams, module.Parameters()...)
	}
	return allParams
}

// Add appends a module to the sequential container.
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}
