// Package preprocess turns raw tabular features into the fixed-length numeric
// vectors the network consumes: standardized numeric columns concatenated
// with one-hot encoded categorical columns. A Transform is fitted once on
// training data and is immutable afterwards, so the exact same encoding is
// applied during validation and inference.
package preprocess

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/tsawler/go-cann/dataset"
	"github.com/tsawler/go-cann/tensor"
)

// minStd floors the standard deviation of a numeric column so constant
// columns do not divide by zero.
const minStd = 1e-12

// Builder declares which columns are model features and how each is encoded.
// Fit consumes the builder's declarations against training data and returns
// the fitted Transform.
type Builder struct {
	numeric     []string
	categorical []string
}

// NewBuilder creates an empty feature builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Numeric declares columns to be standardized: (x - mean) / std, with the
// mean and std estimated from the training data.
func (b *Builder) Numeric(names ...string) *Builder {
	b.numeric = append(b.numeric, names...)
	return b
}

// Categorical declares columns to be one-hot encoded with one indicator per
// level observed in the training data.
func (b *Builder) Categorical(names ...string) *Builder {
	b.categorical = append(b.categorical, names...)
	return b
}

// Fit estimates the encoding from training data and returns an immutable
// Transform. Levels of each categorical column are sorted so the feature
// layout is deterministic for a given training set.
func (b *Builder) Fit(train *dataset.Table) (*Transform, error) {
	if len(b.numeric) == 0 && len(b.categorical) == 0 {
		return nil, errors.New("no feature columns declared")
	}
	if train.NumRows() == 0 {
		return nil, errors.New("cannot fit a transform on an empty table")
	}

	state := State{
		Numeric:     make([]NumericColumn, 0, len(b.numeric)),
		Categorical: make([]CategoricalColumn, 0, len(b.categorical)),
	}

	for _, name := range b.numeric {
		col, err := train.Numeric(name)
		if err != nil {
			return nil, errors.Wrapf(err, "numeric feature %q", name)
		}

		var sum float64
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Errorf("numeric feature %q contains a non-finite value", name)
			}
			sum += v
		}
		mean := sum / float64(len(col))

		var ss float64
		for _, v := range col {
			d := v - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(len(col)))
		if std < minStd {
			std = 1.0 // constant column: center only
		}

		state.Numeric = append(state.Numeric, NumericColumn{Name: name, Mean: mean, Std: std})
	}

	for _, name := range b.categorical {
		col, err := train.Categorical(name)
		if err != nil {
			return nil, errors.Wrapf(err, "categorical feature %q", name)
		}

		seen := make(map[string]bool)
		for _, v := range col {
			seen[v] = true
		}
		levels := make([]string, 0, len(seen))
		for v := range seen {
			levels = append(levels, v)
		}
		sort.Strings(levels)

		state.Categorical = append(state.Categorical, CategoricalColumn{Name: name, Levels: levels})
	}

	return NewTransform(state)
}

// NumericColumn is the fitted state of one standardized column.
type NumericColumn struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// CategoricalColumn is the fitted state of one one-hot encoded column.
type CategoricalColumn struct {
	Name   string   `json:"name"`
	Levels []string `json:"levels"`
}

// State is the serializable fitted state of a Transform, used by the
// checkpoint layer to persist and restore the encoding alongside the model
// weights.
type State struct {
	Numeric     []NumericColumn     `json:"numeric"`
	Categorical []CategoricalColumn `json:"categorical"`
}

// Transform applies a fitted encoding to tables. It holds no mutable state:
// applying it any number of times, from any goroutine, yields identical
// output for identical input.
type Transform struct {
	state  State
	levels []map[string]int // per categorical column: level -> indicator offset
	dim    int
}

// NewTransform builds a Transform from fitted (or deserialized) state.
func NewTransform(state State) (*Transform, error) {
	dim := len(state.Numeric)
	levels := make([]map[string]int, len(state.Categorical))
	for i, col := range state.Categorical {
		if len(col.Levels) == 0 {
			return nil, errors.Errorf("categorical column %q has no levels", col.Name)
		}
		idx := make(map[string]int, len(col.Levels))
		for j, level := range col.Levels {
			if _, dup := idx[level]; dup {
				return nil, errors.Errorf("categorical column %q has duplicate level %q", col.Name, level)
			}
			idx[level] = j
		}
		levels[i] = idx
		dim += len(col.Levels)
	}
	for _, col := range state.Numeric {
		if col.Std <= 0 {
			return nil, errors.Errorf("numeric column %q has non-positive std %g", col.Name, col.Std)
		}
	}

	return &Transform{state: state, levels: levels, dim: dim}, nil
}

// Dim returns the length of the encoded feature vector.
func (tr *Transform) Dim() int {
	return tr.dim
}

// State returns a copy of the fitted state for serialization.
func (tr *Transform) State() State {
	out := State{
		Numeric:     append([]NumericColumn{}, tr.state.Numeric...),
		Categorical: make([]CategoricalColumn, len(tr.state.Categorical)),
	}
	for i, col := range tr.state.Categorical {
		out.Categorical[i] = CategoricalColumn{
			Name:   col.Name,
			Levels: append([]string{}, col.Levels...),
		}
	}
	return out
}

// FeatureNames returns one name per encoded feature, numerics first, then
// column=level indicators in layout order.
func (tr *Transform) FeatureNames() []string {
	names := make([]string, 0, tr.dim)
	for _, col := range tr.state.Numeric {
		names = append(names, col.Name)
	}
	for _, col := range tr.state.Categorical {
		for _, level := range col.Levels {
			names = append(names, col.Name+"="+level)
		}
	}
	return names
}

// Apply encodes every row of the table into an [n, Dim] feature matrix.
// Categorical values never seen during fitting encode as an all-zero
// indicator block rather than failing, so scoring unseen data is always
// possible.
func (tr *Transform) Apply(t *dataset.Table) (*tensor.Tensor, error) {
	n := t.NumRows()
	if n == 0 {
		return nil, errors.New("cannot transform an empty table")
	}

	numericCols := make([][]float64, len(tr.state.Numeric))
	for i, col := range tr.state.Numeric {
		vals, err := t.Numeric(col.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "numeric feature %q", col.Name)
		}
		numericCols[i] = vals
	}

	categoricalCols := make([][]string, len(tr.state.Categorical))
	for i, col := range tr.state.Categorical {
		vals, err := t.Categorical(col.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "categorical feature %q", col.Name)
		}
		categoricalCols[i] = vals
	}

	data := make([]float64, n*tr.dim)
	for row := 0; row < n; row++ {
		offset := row * tr.dim
		pos := 0

		for i, col := range tr.state.Numeric {
			v := numericCols[i][row]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Errorf("numeric feature %q row %d: non-finite value", col.Name, row)
			}
			data[offset+pos] = (v - col.Mean) / col.Std
			pos++
		}

		for i, col := range tr.state.Categorical {
			if j, ok := tr.levels[i][categoricalCols[i][row]]; ok {
				data[offset+pos+j] = 1.0
			}
			pos += len(col.Levels)
		}
	}

	return tensor.NewTensor([]int{n, tr.dim}, data)
}
