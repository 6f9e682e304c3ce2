package main

import (
	"os"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/tsawler/go-cann/dataset"
	"github.com/tsawler/go-cann/freq"
	"github.com/tsawler/go-cann/preprocess"
)

// Column names of the motor third-party liability schema the CLI consumes.
const (
	colClaims   = "ClaimNb"
	colExposure = "Exposure"
	colPrior    = "Prior"
)

// ClaimRecord is one policy row of the input CSV.
type ClaimRecord struct {
	PolicyID   string  `csv:"IDpol"`
	ClaimNb    float64 `csv:"ClaimNb"`
	Exposure   float64 `csv:"Exposure"`
	Area       string  `csv:"Area"`
	VehPower   float64 `csv:"VehPower"`
	VehAge     float64 `csv:"VehAge"`
	DrivAge    float64 `csv:"DrivAge"`
	BonusMalus float64 `csv:"BonusMalus"`
	VehBrand   string  `csv:"VehBrand"`
	VehGas     string  `csv:"VehGas"`
	Density    float64 `csv:"Density"`
	Region     string  `csv:"Region"`
	// Prior is optional: the expected count from an already-fitted model,
	// used as the multiplicative starting point. Zero means absent.
	Prior float64 `csv:"Prior,omitempty"`
}

// loadClaims reads a claims CSV into a column-oriented table.
func loadClaims(path string) (*dataset.Table, []ClaimRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var records []ClaimRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing %s", path)
	}
	if len(records) == 0 {
		return nil, nil, errors.Errorf("%s contains no records", path)
	}

	n := len(records)
	claims := make([]float64, n)
	exposure := make([]float64, n)
	vehPower := make([]float64, n)
	vehAge := make([]float64, n)
	drivAge := make([]float64, n)
	bonusMalus := make([]float64, n)
	density := make([]float64, n)
	area := make([]string, n)
	vehBrand := make([]string, n)
	vehGas := make([]string, n)
	region := make([]string, n)
	prior := make([]float64, n)
	hasPrior := false
	for i, r := range records {
		claims[i] = r.ClaimNb
		exposure[i] = r.Exposure
		vehPower[i] = r.VehPower
		vehAge[i] = r.VehAge
		drivAge[i] = r.DrivAge
		bonusMalus[i] = r.BonusMalus
		density[i] = r.Density
		area[i] = r.Area
		vehBrand[i] = r.VehBrand
		vehGas[i] = r.VehGas
		region[i] = r.Region
		prior[i] = r.Prior
		if r.Prior > 0 {
			hasPrior = true
		}
	}

	tbl := dataset.New(n)
	numeric := []struct {
		name   string
		values []float64
	}{
		{colClaims, claims},
		{colExposure, exposure},
		{"VehPower", vehPower},
		{"VehAge", vehAge},
		{"DrivAge", drivAge},
		{"BonusMalus", bonusMalus},
		{"Density", density},
	}
	for _, col := range numeric {
		if tbl, err = tbl.WithNumeric(col.name, col.values); err != nil {
			return nil, nil, err
		}
	}
	categorical := []struct {
		name   string
		values []string
	}{
		{"Area", area},
		{"VehBrand", vehBrand},
		{"VehGas", vehGas},
		{"Region", region},
	}
	for _, col := range categorical {
		if tbl, err = tbl.WithCategorical(col.name, col.values); err != nil {
			return nil, nil, err
		}
	}
	if hasPrior {
		if tbl, err = tbl.WithNumeric(colPrior, prior); err != nil {
			return nil, nil, err
		}
	}
	return tbl, records, nil
}

// featureBuilder declares the standard feature set of the schema.
func featureBuilder() *preprocess.Builder {
	return preprocess.NewBuilder().
		Numeric("VehPower", "VehAge", "DrivAge", "BonusMalus", "Density").
		Categorical("Area", "VehBrand", "VehGas", "Region")
}

// claimsSchema returns the target schema, using the prior column only when
// the table carries one.
func claimsSchema(tbl *dataset.Table) freq.Schema {
	schema := freq.Schema{Target: colClaims, Weight: colExposure}
	if tbl.HasColumn(colPrior) {
		schema.Prior = colPrior
	}
	return schema
}
