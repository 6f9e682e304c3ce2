package freq

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-cann/dataset"
)

// Null is the intercept-only frequency model: a single portfolio-wide claim
// rate applied to every record's exposure. It is the baseline every other
// model must beat.
type Null struct {
	rate   float64
	schema Schema
}

// FitNull estimates the exposure-weighted mean frequency from a claims
// table: total claims divided by total exposure.
func FitNull(train *dataset.Table, schema Schema) (*Null, error) {
	if train == nil || train.NumRows() == 0 {
		return nil, errors.New("training table is empty")
	}
	targets, err := dataset.ExtractTargets(train, schema.Target, schema.Weight, "")
	if err != nil {
		return nil, errors.Wrap(err, "extracting targets")
	}

	var totalClaims, totalExposure float64
	for i := range targets.Counts {
		totalClaims += targets.Counts[i]
		totalExposure += targets.Weights[i]
	}
	return &Null{rate: totalClaims / totalExposure, schema: schema}, nil
}

// NewNull builds a null model from a known rate, for checkpoint restore.
func NewNull(rate float64, schema Schema) (*Null, error) {
	if rate < 0 {
		return nil, errors.Errorf("claim rate must be non-negative, got %g", rate)
	}
	return &Null{rate: rate, schema: schema}, nil
}

// Rate returns the fitted portfolio claim rate per unit of exposure.
func (n *Null) Rate() float64 {
	return n.rate
}

// Predict returns rate * exposure for every row of the table.
func (n *Null) Predict(tbl *dataset.Table) ([]float64, error) {
	exposure, err := tbl.Numeric(n.schema.Weight)
	if err != nil {
		return nil, errors.Wrap(err, "reading exposure column")
	}
	out := make([]float64, len(exposure))
	for i, e := range exposure {
		out[i] = n.rate * e
	}
	return out, nil
}
