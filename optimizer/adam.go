package optimizer

import (
	"math"
	"sync"

	"github.com/tsawler/go-cann/tensor"
)

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates and optional L2 weight decay.
type Adam struct {
	parameters  []*tensor.Tensor
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	step        int64
	m           map[*tensor.Tensor][]float64
	v           map[*tensor.Tensor][]float64
	mutex       sync.RWMutex
}

// NewAdam creates a new Adam optimizer over the given parameters.
func NewAdam(parameters []*tensor.Tensor, lr, beta1, beta2, eps, weightDecay float64) *Adam {
	adam := &Adam{
		parameters:  parameters,
		lr:          lr,
		beta1:       beta1,
		beta2:       beta2,
		eps:         eps,
		weightDecay: weightDecay,
		m:           make(map[*tensor.Tensor][]float64),
		v:           make(map[*tensor.Tensor][]float64),
	}

	for _, param := range parameters {
		if param.RequiresGrad() {
			adam.m[param] = make([]float64, param.NumElems)
			adam.v[param] = make([]float64, param.NumElems)
		}
	}

	return adam
}

// DefaultAdam creates an Adam optimizer with the conventional defaults
// (beta1=0.9, beta2=0.999, eps=1e-8, no weight decay).
func DefaultAdam(parameters []*tensor.Tensor, lr float64) *Adam {
	return NewAdam(parameters, lr, 0.9, 0.999, 1e-8, 0)
}

// Step performs a single optimization step.
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.step++

	// Bias correction factors
	bias1 := 1.0 - math.Pow(adam.beta1, float64(adam.step))
	bias2 := 1.0 - math.Pow(adam.beta2, float64(adam.step))

	for _, param := range adam.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		gradData := param.Grad().Data
		grad := make([]float64, len(gradData))
		copy(grad, gradData)

		if adam.weightDecay > 0 {
			for i := range grad {
				grad[i] += adam.weightDecay * param.Data[i]
			}
		}

		m, ok := adam.m[param]
		if !ok {
			m = make([]float64, param.NumElems)
			adam.m[param] = m
		}
		v, ok := adam.v[param]
		if !ok {
			v = make([]float64, param.NumElems)
			adam.v[param] = v
		}

		for i := range grad {
			m[i] = adam.beta1*m[i] + (1.0-adam.beta1)*grad[i]
			v[i] = adam.beta2*v[i] + (1.0-adam.beta2)*grad[i]*grad[i]

			mHat := m[i] / bias1
			vHat := v[i] / bias2

			param.Data[i] -= adam.lr * mHat / (math.Sqrt(vHat) + adam.eps)
		}
	}

	return nil
}

// ZeroGrad resets gradients to zero for all parameters.
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.parameters)
}

// GetLR returns the current learning rate.
func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.lr
}

// SetLR sets the learning rate.
func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.lr = lr
}
