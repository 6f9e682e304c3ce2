package optimizer

import (
	"math"
	"testing"

	"github.com/tsawler/go-cann/tensor"
)

// newParam creates a trainable parameter with an accumulated gradient.
func newParam(t *testing.T, data, grad []float64) *tensor.Tensor {
	t.Helper()

	p, err := tensor.NewTensor([]int{len(data)}, data)
	if err != nil {
		t.Fatalf("Failed to create parameter: %v", err)
	}
	p.SetRequiresGrad(true)

	g, err := tensor.NewTensor([]int{len(grad)}, grad)
	if err != nil {
		t.Fatalf("Failed to create gradient: %v", err)
	}
	if err := p.AccumulateGrad(g); err != nil {
		t.Fatalf("Failed to accumulate gradient: %v", err)
	}

	return p
}

func TestSGD(t *testing.T) {
	t.Run("vanilla step", func(t *testing.T) {
		p := newParam(t, []float64{1.0, 2.0}, []float64{0.5, -0.5})
		sgd := NewSGD([]*tensor.Tensor{p}, 0.1, 0, 0, 0, false)

		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}

		want := []float64{0.95, 2.05}
		for i, v := range p.Data {
			if math.Abs(v-want[i]) > 1e-12 {
				t.Errorf("param[%d]: expected %f, got %f", i, want[i], v)
			}
		}
	})

	t.Run("momentum accumulates", func(t *testing.T) {
		p := newParam(t, []float64{0.0}, []float64{1.0})
		sgd := NewSGD([]*tensor.Tensor{p}, 0.1, 0.9, 0, 0, false)

		// First step: velocity = 1, update = -0.1
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if math.Abs(p.Data[0]+0.1) > 1e-12 {
			t.Fatalf("after first step: expected -0.1, got %f", p.Data[0])
		}

		// Second step with the same gradient: velocity = 0.9 + 1 = 1.9
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if math.Abs(p.Data[0]+0.29) > 1e-12 {
			t.Errorf("after second step: expected -0.29, got %f", p.Data[0])
		}
	})

	t.Run("weight decay pulls toward zero", func(t *testing.T) {
		p := newParam(t, []float64{1.0}, []float64{0.0})
		sgd := NewSGD([]*tensor.Tensor{p}, 0.1, 0, 0.5, 0, false)

		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if math.Abs(p.Data[0]-0.95) > 1e-12 {
			t.Errorf("expected 0.95, got %f", p.Data[0])
		}
	})

	t.Run("skips parameters without gradients", func(t *testing.T) {
		p, _ := tensor.NewTensor([]int{1}, []float64{3.0})
		p.SetRequiresGrad(true)
		sgd := NewSGD([]*tensor.Tensor{p}, 0.1, 0, 0, 0, false)

		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if p.Data[0] != 3.0 {
			t.Errorf("parameter without gradient should be untouched, got %f", p.Data[0])
		}
	})
}

func TestAdam(t *testing.T) {
	t.Run("first step magnitude equals lr", func(t *testing.T) {
		// With bias correction, the first Adam update is lr * g/|g| up to eps.
		p := newParam(t, []float64{1.0}, []float64{0.3})
		adam := DefaultAdam([]*tensor.Tensor{p}, 0.01)

		if err := adam.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}

		if math.Abs(p.Data[0]-(1.0-0.01)) > 1e-6 {
			t.Errorf("expected ~0.99, got %f", p.Data[0])
		}
	})

	t.Run("descends on a quadratic", func(t *testing.T) {
		// Minimize f(x) = x^2 starting at x=2.
		p := newParam(t, []float64{2.0}, []float64{4.0})
		adam := DefaultAdam([]*tensor.Tensor{p}, 0.1)

		for i := 0; i < 100; i++ {
			adam.ZeroGrad()
			g, _ := tensor.NewTensor([]int{1}, []float64{2 * p.Data[0]})
			if err := p.AccumulateGrad(g); err != nil {
				t.Fatalf("AccumulateGrad failed: %v", err)
			}
			if err := adam.Step(); err != nil {
				t.Fatalf("Step failed: %v", err)
			}
		}

		if math.Abs(p.Data[0]) > 0.1 {
			t.Errorf("expected convergence near 0, got %f", p.Data[0])
		}
	})
}

func TestRMSProp(t *testing.T) {
	p := newParam(t, []float64{2.0}, []float64{4.0})
	rms := NewRMSProp([]*tensor.Tensor{p}, 0.05, 0.99, 1e-8, 0)

	for i := 0; i < 200; i++ {
		rms.ZeroGrad()
		g, _ := tensor.NewTensor([]int{1}, []float64{2 * p.Data[0]})
		if err := p.AccumulateGrad(g); err != nil {
			t.Fatalf("AccumulateGrad failed: %v", err)
		}
		if err := rms.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	if math.Abs(p.Data[0]) > 0.2 {
		t.Errorf("expected convergence near 0, got %f", p.Data[0])
	}
}

func TestLearningRateAccessors(t *testing.T) {
	p := newParam(t, []float64{1.0}, []float64{1.0})

	opts := []Optimizer{
		NewSGD([]*tensor.Tensor{p}, 0.1, 0, 0, 0, false),
		DefaultAdam([]*tensor.Tensor{p}, 0.1),
		NewRMSProp([]*tensor.Tensor{p}, 0.1, 0.99, 1e-8, 0),
	}

	for _, opt := range opts {
		if opt.GetLR() != 0.1 {
			t.Errorf("expected initial LR 0.1, got %f", opt.GetLR())
		}
		opt.SetLR(0.01)
		if opt.GetLR() != 0.01 {
			t.Errorf("expected LR 0.01 after SetLR, got %f", opt.GetLR())
		}
	}
}
