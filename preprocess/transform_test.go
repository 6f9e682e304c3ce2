package preprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-cann/dataset"
)

func buildTable(t *testing.T) *dataset.Table {
	t.Helper()

	tbl, err := dataset.New(4).WithNumeric("age", []float64{20, 30, 40, 50})
	require.NoError(t, err)
	tbl, err = tbl.WithCategorical("region", []string{"north", "south", "north", "east"})
	require.NoError(t, err)
	return tbl
}

func TestFitStandardizesNumerics(t *testing.T) {
	tbl := buildTable(t)

	tr, err := NewBuilder().Numeric("age").Fit(tbl)
	require.NoError(t, err)
	require.Equal(t, 1, tr.Dim())

	features, err := tr.Apply(tbl)
	require.NoError(t, err)
	require.Equal(t, []int{4, 1}, features.Shape)

	// mean 35, population std sqrt(125)
	std := math.Sqrt(125.0)
	want := []float64{(20 - 35) / std, (30 - 35) / std, (40 - 35) / std, (50 - 35) / std}
	for i, w := range want {
		assert.InDelta(t, w, features.Data[i], 1e-12)
	}

	// standardized output has zero mean
	var sum float64
	for _, v := range features.Data {
		sum += v
	}
	assert.InDelta(t, 0.0, sum, 1e-12)
}

func TestFitOneHotSortedLevels(t *testing.T) {
	tbl := buildTable(t)

	tr, err := NewBuilder().Categorical("region").Fit(tbl)
	require.NoError(t, err)
	require.Equal(t, 3, tr.Dim())
	assert.Equal(t, []string{"region=east", "region=north", "region=south"}, tr.FeatureNames())

	features, err := tr.Apply(tbl)
	require.NoError(t, err)

	want := []float64{
		0, 1, 0, // north
		0, 0, 1, // south
		0, 1, 0, // north
		1, 0, 0, // east
	}
	assert.Equal(t, want, features.Data)
}

func TestApplyUnseenLevelEncodesAsZeros(t *testing.T) {
	train := buildTable(t)
	tr, err := NewBuilder().Categorical("region").Fit(train)
	require.NoError(t, err)

	score, err := dataset.New(2).WithCategorical("region", []string{"west", "south"})
	require.NoError(t, err)

	features, err := tr.Apply(score)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 0}, features.Data[0:3], "unseen level should be all zeros")
	assert.Equal(t, []float64{0, 0, 1}, features.Data[3:6])
}

func TestApplyIsDeterministic(t *testing.T) {
	tbl := buildTable(t)
	tr, err := NewBuilder().Numeric("age").Categorical("region").Fit(tbl)
	require.NoError(t, err)
	require.Equal(t, 4, tr.Dim())

	first, err := tr.Apply(tbl)
	require.NoError(t, err)
	second, err := tr.Apply(tbl)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestConstantColumnCentersOnly(t *testing.T) {
	tbl, err := dataset.New(3).WithNumeric("flat", []float64{7, 7, 7})
	require.NoError(t, err)

	tr, err := NewBuilder().Numeric("flat").Fit(tbl)
	require.NoError(t, err)

	features, err := tr.Apply(tbl)
	require.NoError(t, err)
	for _, v := range features.Data {
		assert.InDelta(t, 0.0, v, 1e-12)
	}
}

func TestStateRoundTrip(t *testing.T) {
	tbl := buildTable(t)
	fitted, err := NewBuilder().Numeric("age").Categorical("region").Fit(tbl)
	require.NoError(t, err)

	restored, err := NewTransform(fitted.State())
	require.NoError(t, err)
	require.Equal(t, fitted.Dim(), restored.Dim())

	a, err := fitted.Apply(tbl)
	require.NoError(t, err)
	b, err := restored.Apply(tbl)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestFitErrors(t *testing.T) {
	tbl := buildTable(t)

	_, err := NewBuilder().Fit(tbl)
	assert.Error(t, err, "no columns declared")

	_, err = NewBuilder().Numeric("missing").Fit(tbl)
	assert.Error(t, err)

	_, err = NewBuilder().Categorical("age").Fit(tbl)
	assert.Error(t, err, "age is numeric, not categorical")

	_, err = NewTransform(State{Numeric: []NumericColumn{{Name: "x", Mean: 0, Std: 0}}})
	assert.Error(t, err, "non-positive std")

	_, err = NewTransform(State{Categorical: []CategoricalColumn{{Name: "r", Levels: nil}}})
	assert.Error(t, err, "empty level set")
}
