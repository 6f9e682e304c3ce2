package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-cann/tensor"
)

// DefaultEps is the constant added to observed counts inside the deviance
// logarithm so that y = 0 does not produce log(0).
const DefaultEps = 1e-8

// Loss computes a scalar training criterion and its gradient with respect to
// the predictions. Weights may be nil, in which case every sample has unit
// weight.
type Loss interface {
	Forward(predicted, target, weights *tensor.Tensor) (float64, error)
	Backward(predicted, target, weights *tensor.Tensor) (*tensor.Tensor, error)
}

// PoissonDevianceLoss is the weighted mean Poisson deviance
//
//	mean(2 * (y*log((y+eps)/yhat) - (y - yhat)))
//
// between predicted claim counts yhat and observed counts y. It is zero (up
// to eps) when predictions match observations exactly and non-negative
// everywhere. Predictions must be strictly positive; the CANN's exponential
// output activation guarantees that by construction, and any other caller is
// rejected with an error rather than silently producing infinities.
type PoissonDevianceLoss struct {
	eps float64
}

// NewPoissonDevianceLoss creates a Poisson deviance loss. A non-positive eps
// falls back to DefaultEps.
func NewPoissonDevianceLoss(eps float64) *PoissonDevianceLoss {
	if eps <= 0 {
		eps = DefaultEps
	}
	return &PoissonDevianceLoss{eps: eps}
}

func (pd *PoissonDevianceLoss) check(predicted, target, weights *tensor.Tensor) error {
	if predicted.NumElems != target.NumElems {
		return fmt.Errorf("predicted and target sizes differ: %d vs %d", predicted.NumElems, target.NumElems)
	}
	if weights != nil && weights.NumElems != predicted.NumElems {
		return fmt.Errorf("weights size %d does not match predictions size %d", weights.NumElems, predicted.NumElems)
	}
	return nil
}

// Forward computes the weighted mean deviance over the batch.
func (pd *PoissonDevianceLoss) Forward(predicted, target, weights *tensor.Tensor) (float64, error) {
	if err := pd.check(predicted, target, weights); err != nil {
		return 0, err
	}

	var total, totalWeight float64
	for i := 0; i < predicted.NumElems; i++ {
		yhat := predicted.Data[i]
		y := target.Data[i]

		if yhat <= 0 {
			return 0, fmt.Errorf("non-positive prediction %g at sample %d", yhat, i)
		}
		if y < 0 {
			return 0, fmt.Errorf("negative observed count %g at sample %d", y, i)
		}

		w := 1.0
		if weights != nil {
			w = weights.Data[i]
			if w <= 0 {
				return 0, fmt.Errorf("non-positive sample weight %g at sample %d", w, i)
			}
		}

		dev := 2.0 * (y*math.Log((y+pd.eps)/yhat) - (y - yhat))
		total += w * dev
		totalWeight += w
	}

	loss := total / totalWeight
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, fmt.Errorf("non-finite Poisson deviance: %g", loss)
	}
	return loss, nil
}

// Backward computes dLoss/dPredicted for the weighted mean deviance:
// 2 * w_i * (1 - y_i/yhat_i) / sum(w).
func (pd *PoissonDevianceLoss) Backward(predicted, target, weights *tensor.Tensor) (*tensor.Tensor, error) {
	if err := pd.check(predicted, target, weights); err != nil {
		return nil, err
	}

	totalWeight := float64(predicted.NumElems)
	if weights != nil {
		totalWeight = tensor.Sum(weights)
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("non-positive total weight %g", totalWeight)
	}

	data := make([]float64, predicted.NumElems)
	for i := 0; i < predicted.NumElems; i++ {
		yhat := predicted.Data[i]
		y := target.Data[i]

		if yhat <= 0 {
			return nil, fmt.Errorf("non-positive prediction %g at sample %d", yhat, i)
		}

		w := 1.0
		if weights != nil {
			w = weights.Data[i]
		}

		data[i] = 2.0 * w * (1.0 - y/yhat) / totalWeight
	}

	grad, err := tensor.NewTensor(append([]int{}, predicted.Shape...), data)
	if err != nil {
		return nil, err
	}
	if !tensor.IsFinite(grad) {
		return nil, fmt.Errorf("non-finite deviance gradient")
	}
	return grad, nil
}
