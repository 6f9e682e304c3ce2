package optimizer

import (
	"fmt"
	"sync"

	"github.com/tsawler/go-cann/tensor"
)

// SGD implements stochastic gradient descent with optional momentum, Nesterov
// acceleration, and L2 weight decay.
type SGD struct {
	parameters   []*tensor.Tensor
	learningRate float64
	momentum     float64
	weightDecay  float64
	dampening    float64
	nesterov     bool
	velocities   map[*tensor.Tensor][]float64
	mutex        sync.RWMutex
}

// NewSGD creates a new SGD optimizer over the given parameters.
func NewSGD(parameters []*tensor.Tensor, lr, momentum, weightDecay, dampening float64, nesterov bool) *SGD {
	sgd := &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
		dampening:    dampening,
		nesterov:     nesterov,
		velocities:   make(map[*tensor.Tensor][]float64),
	}

	if momentum > 0 {
		for _, param := range parameters {
			if param.RequiresGrad() {
				sgd.velocities[param] = make([]float64, param.NumElems)
			}
		}
	}

	return sgd
}

// Step performs a single optimization step.
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	for _, param := range sgd.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		gradData := param.Grad().Data
		grad := make([]float64, len(gradData))
		copy(grad, gradData)

		// grad = grad + weight_decay * param
		if sgd.weightDecay > 0 {
			for i := range grad {
				grad[i] += sgd.weightDecay * param.Data[i]
			}
		}

		if sgd.momentum > 0 {
			velocity, ok := sgd.velocities[param]
			if !ok {
				velocity = make([]float64, param.NumElems)
				sgd.velocities[param] = velocity
			}
			if len(velocity) != len(grad) {
				return fmt.Errorf("velocity size %d does not match gradient size %d", len(velocity), len(grad))
			}

			// velocity = momentum * velocity + (1 - dampening) * grad
			for i := range velocity {
				velocity[i] = sgd.momentum*velocity[i] + (1.0-sgd.dampening)*grad[i]
			}

			if sgd.nesterov {
				for i := range grad {
					grad[i] += sgd.momentum * velocity[i]
				}
			} else {
				copy(grad, velocity)
			}
		}

		for i := range param.Data {
			param.Data[i] -= sgd.learningRate * grad[i]
		}
	}

	return nil
}

// ZeroGrad resets gradients to zero for all parameters.
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

// GetLR returns the current learning rate.
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.learningRate
}

// SetLR sets the learning rate.
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.learningRate = lr
}
