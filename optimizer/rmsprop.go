package optimizer

import (
	"math"
	"sync"

	"github.com/tsawler/go-cann/tensor"
)

// RMSProp implements the RMSProp optimizer with an exponentially decaying
// average of squared gradients.
type RMSProp struct {
	parameters  []*tensor.Tensor
	lr          float64
	alpha       float64
	eps         float64
	weightDecay float64
	squareAvg   map[*tensor.Tensor][]float64
	mutex       sync.RWMutex
}

// NewRMSProp creates a new RMSProp optimizer over the given parameters.
func NewRMSProp(parameters []*tensor.Tensor, lr, alpha, eps, weightDecay float64) *RMSProp {
	rms := &RMSProp{
		parameters:  parameters,
		lr:          lr,
		alpha:       alpha,
		eps:         eps,
		weightDecay: weightDecay,
		squareAvg:   make(map[*tensor.Tensor][]float64),
	}

	for _, param := range parameters {
		if param.RequiresGrad() {
			rms.squareAvg[param] = make([]float64, param.NumElems)
		}
	}

	return rms
}

// Step performs a single optimization step.
func (rms *RMSProp) Step() error {
	rms.mutex.Lock()
	defer rms.mutex.Unlock()

	for _, param := range rms.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		gradData := param.Grad().Data
		grad := make([]float64, len(gradData))
		copy(grad, gradData)

		if rms.weightDecay > 0 {
			for i := range grad {
				grad[i] += rms.weightDecay * param.Data[i]
			}
		}

		sq, ok := rms.squareAvg[param]
		if !ok {
			sq = make([]float64, param.NumElems)
			rms.squareAvg[param] = sq
		}

		for i := range grad {
			sq[i] = rms.alpha*sq[i] + (1.0-rms.alpha)*grad[i]*grad[i]
			param.Data[i] -= rms.lr * grad[i] / (math.Sqrt(sq[i]) + rms.eps)
		}
	}

	return nil
}

// ZeroGrad resets gradients to zero for all parameters.
func (rms *RMSProp) ZeroGrad() {
	tensor.ZeroGrad(rms.parameters)
}

// GetLR returns the current learning rate.
func (rms *RMSProp) GetLR() float64 {
	rms.mutex.RLock()
	defer rms.mutex.RUnlock()
	return rms.lr
}

// SetLR sets the learning rate.
func (rms *RMSProp) SetLR(lr float64) {
	rms.mutex.Lock()
	defer rms.mutex.Unlock()
	rms.lr = lr
}
