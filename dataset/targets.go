package dataset

import (
	"math"

	"github.com/pkg/errors"
)

// Targets bundles the three special columns of a claim-frequency problem:
// observed event counts, exposure weights, and prior predictions. The
// invariants checked here keep the downstream log and division operations
// well defined: weights and priors are strictly positive, counts are
// non-negative integers.
type Targets struct {
	Counts  []float64
	Weights []float64
	Priors  []float64
}

// ExtractTargets reads and validates the target, weight, and optional prior
// columns from a table. priorCol may be empty, in which case each row's prior
// defaults to its exposure weight.
func ExtractTargets(t *Table, targetCol, weightCol, priorCol string) (*Targets, error) {
	counts, err := t.Numeric(targetCol)
	if err != nil {
		return nil, errors.Wrap(err, "target column")
	}
	weights, err := t.Numeric(weightCol)
	if err != nil {
		return nil, errors.Wrap(err, "weight column")
	}

	for i, y := range counts {
		if y < 0 || y != math.Trunc(y) || math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, errors.Errorf("column %q row %d: observed count must be a non-negative integer, got %g", targetCol, i, y)
		}
	}
	for i, w := range weights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.Errorf("column %q row %d: exposure weight must be strictly positive, got %g", weightCol, i, w)
		}
	}

	out := &Targets{
		Counts:  append([]float64{}, counts...),
		Weights: append([]float64{}, weights...),
	}

	if priorCol == "" {
		out.Priors = append([]float64{}, weights...)
		return out, nil
	}

	priors, err := t.Numeric(priorCol)
	if err != nil {
		return nil, errors.Wrap(err, "prior column")
	}
	for i, p := range priors {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, errors.Errorf("column %q row %d: prior prediction must be strictly positive, got %g", priorCol, i, p)
		}
	}
	out.Priors = append([]float64{}, priors...)

	return out, nil
}
