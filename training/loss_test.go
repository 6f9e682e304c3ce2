package training

import (
	"math"
	"testing"

	"github.com/tsawler/go-cann/tensor"
)

func TestPoissonDevianceLoss(t *testing.T) {
	criterion := NewPoissonDevianceLoss(0)

	t.Run("zero when predicted equals observed", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{3, 1}, []float64{1, 2, 5})
		target, _ := tensor.NewTensor([]int{3, 1}, []float64{1, 2, 5})

		loss, err := criterion.Forward(pred, target, nil)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		if math.Abs(loss) > 1e-6 {
			t.Errorf("expected ~0 loss for perfect predictions, got %g", loss)
		}
	})

	t.Run("non-negative everywhere", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{4, 1}, []float64{0.5, 1.2, 3.0, 0.01})
		target, _ := tensor.NewTensor([]int{4, 1}, []float64{0, 1, 5, 2})

		loss, err := criterion.Forward(pred, target, nil)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		if loss < 0 {
			t.Errorf("deviance must be non-negative, got %g", loss)
		}
	})

	t.Run("handles zero counts without log(0)", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{2, 1}, []float64{0.3, 0.7})
		target, _ := tensor.NewTensor([]int{2, 1}, []float64{0, 0})

		loss, err := criterion.Forward(pred, target, nil)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		// With y=0 the deviance reduces to 2*yhat.
		want := (2*0.3 + 2*0.7) / 2
		if math.Abs(loss-want) > 1e-9 {
			t.Errorf("expected %g, got %g", want, loss)
		}
	})

	t.Run("rejects non-positive predictions", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{2, 1}, []float64{1.0, 0.0})
		target, _ := tensor.NewTensor([]int{2, 1}, []float64{1, 1})

		if _, err := criterion.Forward(pred, target, nil); err == nil {
			t.Error("Expected error for zero prediction")
		}
	})

	t.Run("rejects negative counts", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{1, 1}, []float64{1.0})
		target, _ := tensor.NewTensor([]int{1, 1}, []float64{-1})

		if _, err := criterion.Forward(pred, target, nil); err == nil {
			t.Error("Expected error for negative count")
		}
	})

	t.Run("rejects non-positive weights", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{1, 1}, []float64{1.0})
		target, _ := tensor.NewTensor([]int{1, 1}, []float64{1})
		weights, _ := tensor.NewTensor([]int{1, 1}, []float64{0})

		if _, err := criterion.Forward(pred, target, weights); err == nil {
			t.Error("Expected error for zero weight")
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{2, 1}, []float64{1, 1})
		target, _ := tensor.NewTensor([]int{3, 1}, []float64{1, 1, 1})

		if _, err := criterion.Forward(pred, target, nil); err == nil {
			t.Error("Expected error for size mismatch")
		}
	})
}

func TestPoissonDevianceGradient(t *testing.T) {
	criterion := NewPoissonDevianceLoss(0)

	t.Run("zero gradient at the optimum", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{2, 1}, []float64{2, 3})
		target, _ := tensor.NewTensor([]int{2, 1}, []float64{2, 3})

		grad, err := criterion.Backward(pred, target, nil)
		if err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
		for i, g := range grad.Data {
			if g != 0 {
				t.Errorf("grad[%d]: expected exactly 0 at optimum, got %g", i, g)
			}
		}
	})

	t.Run("sign pushes predictions toward targets", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{2, 1}, []float64{2.0, 0.5})
		target, _ := tensor.NewTensor([]int{2, 1}, []float64{1.0, 1.0})

		grad, err := criterion.Backward(pred, target, nil)
		if err != nil {
			t.Fatalf("Backward failed: %v", err)
		}

		// Over-prediction: positive gradient (descend -> smaller prediction).
		if grad.Data[0] <= 0 {
			t.Errorf("expected positive gradient for over-prediction, got %g", grad.Data[0])
		}
		// Under-prediction: negative gradient.
		if grad.Data[1] >= 0 {
			t.Errorf("expected negative gradient for under-prediction, got %g", grad.Data[1])
		}
	})

	t.Run("matches finite differences", func(t *testing.T) {
		pred, _ := tensor.NewTensor([]int{3, 1}, []float64{0.8, 2.5, 1.1})
		target, _ := tensor.NewTensor([]int{3, 1}, []float64{1, 3, 0})
		weights, _ := tensor.NewTensor([]int{3, 1}, []float64{1.0, 2.0, 0.5})

		grad, err := criterion.Backward(pred, target, weights)
		if err != nil {
			t.Fatalf("Backward failed: %v", err)
		}

		const h = 1e-7
		for i := range pred.Data {
			orig := pred.Data[i]

			pred.Data[i] = orig + h
			plus, err := criterion.Forward(pred, target, weights)
			if err != nil {
				t.Fatalf("Forward failed: %v", err)
			}
			pred.Data[i] = orig - h
			minus, err := criterion.Forward(pred, target, weights)
			if err != nil {
				t.Fatalf("Forward failed: %v", err)
			}
			pred.Data[i] = orig

			numeric := (plus - minus) / (2 * h)
			if math.Abs(numeric-grad.Data[i]) > 1e-5*(1+math.Abs(numeric)) {
				t.Errorf("grad[%d]: analytic %g, numeric %g", i, grad.Data[i], numeric)
			}
		}
	})
}
