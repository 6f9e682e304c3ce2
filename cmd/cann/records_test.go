package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `IDpol,ClaimNb,Exposure,Area,VehPower,VehAge,DrivAge,BonusMalus,VehBrand,VehGas,Density,Region
1,0,0.5,D,5,0,55,50,B12,Regular,1217,R82
2,1,0.75,A,6,2,38,68,B3,Diesel,54,R22
3,0,0.9,C,7,9,44,50,B12,Regular,302,R72
`

const sampleCSVWithPrior = `IDpol,ClaimNb,Exposure,Prior
1,0,0.5,0.04
2,1,0.75,0.09
`

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claims.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadClaims(t *testing.T) {
	tbl, records, err := loadClaims(writeCSV(t, sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 3, tbl.NumRows())

	claims, err := tbl.Numeric(colClaims)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, claims)

	region, err := tbl.Categorical("Region")
	require.NoError(t, err)
	assert.Equal(t, []string{"R82", "R22", "R72"}, region)

	assert.False(t, tbl.HasColumn(colPrior), "no prior column in the input")
	schema := claimsSchema(tbl)
	assert.Empty(t, schema.Prior)
	assert.Equal(t, colClaims, schema.Target)
	assert.Equal(t, colExposure, schema.Weight)
}

func TestLoadClaimsWithPrior(t *testing.T) {
	tbl, _, err := loadClaims(writeCSV(t, sampleCSVWithPrior))
	require.NoError(t, err)

	require.True(t, tbl.HasColumn(colPrior))
	prior, err := tbl.Numeric(colPrior)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.04, 0.09}, prior)
	assert.Equal(t, colPrior, claimsSchema(tbl).Prior)
}

func TestLoadClaimsErrors(t *testing.T) {
	_, _, err := loadClaims(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, _, err = loadClaims(writeCSV(t, "IDpol,ClaimNb,Exposure\n"))
	assert.Error(t, err, "header only, no records")
}

func TestFeatureBuilderMatchesSchema(t *testing.T) {
	tbl, _, err := loadClaims(writeCSV(t, sampleCSV))
	require.NoError(t, err)

	transform, err := featureBuilder().Fit(tbl)
	require.NoError(t, err)
	// 5 numerics plus one-hot levels observed in the sample
	assert.Greater(t, transform.Dim(), 5)
}
