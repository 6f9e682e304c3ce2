// Package dataset provides the tabular container claim-frequency models are
// fitted on: named numeric and categorical columns of equal length, plus the
// validation and splitting helpers the modelling layer relies on.
package dataset

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Table is a column-oriented collection of observations. Columns are either
// numeric (float64) or categorical (string); all columns have the same
// length. A Table is append-only: mutating helpers return a new Table and
// never touch the receiver's columns.
type Table struct {
	n       int
	numeric map[string][]float64
	strings map[string][]string
	order   []string
}

// New creates an empty table expecting n rows.
func New(n int) *Table {
	return &Table{
		n:       n,
		numeric: make(map[string][]float64),
		strings: make(map[string][]string),
	}
}

// NumRows returns the number of observations.
func (t *Table) NumRows() int {
	return t.n
}

// Columns returns the column names in insertion order.
func (t *Table) Columns() []string {
	return append([]string{}, t.order...)
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, okN := t.numeric[name]
	_, okS := t.strings[name]
	return okN || okS
}

// WithNumeric returns a copy of the table with a numeric column added or
// replaced.
func (t *Table) WithNumeric(name string, values []float64) (*Table, error) {
	if len(values) != t.n {
		return nil, errors.Errorf("column %q has %d values, table has %d rows", name, len(values), t.n)
	}
	out := t.clone()
	if !out.HasColumn(name) {
		out.order = append(out.order, name)
	}
	delete(out.strings, name)
	col := make([]float64, len(values))
	copy(col, values)
	out.numeric[name] = col
	return out, nil
}

// WithCategorical returns a copy of the table with a categorical column added
// or replaced.
func (t *Table) WithCategorical(name string, values []string) (*Table, error) {
	if len(values) != t.n {
		return nil, errors.Errorf("column %q has %d values, table has %d rows", name, len(values), t.n)
	}
	out := t.clone()
	if !out.HasColumn(name) {
		out.order = append(out.order, name)
	}
	delete(out.numeric, name)
	col := make([]string, len(values))
	copy(col, values)
	out.strings[name] = col
	return out, nil
}

// Numeric returns the named numeric column.
func (t *Table) Numeric(name string) ([]float64, error) {
	col, ok := t.numeric[name]
	if !ok {
		if _, isString := t.strings[name]; isString {
			return nil, errors.Errorf("column %q is categorical, not numeric", name)
		}
		return nil, errors.Errorf("no column named %q", name)
	}
	return col, nil
}

// Categorical returns the named categorical column.
func (t *Table) Categorical(name string) ([]string, error) {
	col, ok := t.strings[name]
	if !ok {
		if _, isNumeric := t.numeric[name]; isNumeric {
			return nil, errors.Errorf("column %q is numeric, not categorical", name)
		}
		return nil, errors.Errorf("no column named %q", name)
	}
	return col, nil
}

// IsNumeric reports whether the named column is numeric.
func (t *Table) IsNumeric(name string) bool {
	_, ok := t.numeric[name]
	return ok
}

// Select returns a new table containing only the given rows, in the given
// order.
func (t *Table) Select(rows []int) (*Table, error) {
	for _, r := range rows {
		if r < 0 || r >= t.n {
			return nil, errors.Errorf("row index %d out of range [0, %d)", r, t.n)
		}
	}

	out := New(len(rows))
	out.order = append([]string{}, t.order...)
	for name, col := range t.numeric {
		sub := make([]float64, len(rows))
		for i, r := range rows {
			sub[i] = col[r]
		}
		out.numeric[name] = sub
	}
	for name, col := range t.strings {
		sub := make([]string, len(rows))
		for i, r := range rows {
			sub[i] = col[r]
		}
		out.strings[name] = sub
	}
	return out, nil
}

// Split shuffles row indices with the given seed and partitions the table
// into two tables, the first holding approximately fraction of the rows.
// Used to carve a held-out validation set from training data.
func (t *Table) Split(fraction float64, seed int64) (*Table, *Table, error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, errors.Errorf("split fraction must be in (0, 1), got %g", fraction)
	}

	indices := make([]int, t.n)
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	cut := int(math.Round(fraction * float64(t.n)))
	if cut < 1 || cut >= t.n {
		return nil, nil, errors.Errorf("split fraction %g leaves an empty partition for %d rows", fraction, t.n)
	}

	first, err := t.Select(indices[:cut])
	if err != nil {
		return nil, nil, err
	}
	second, err := t.Select(indices[cut:])
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func (t *Table) clone() *Table {
	out := New(t.n)
	out.order = append([]string{}, t.order...)
	for name, col := range t.numeric {
		c := make([]float64, len(col))
		copy(c, col)
		out.numeric[name] = c
	}
	for name, col := range t.strings {
		c := make([]string, len(col))
		copy(c, col)
		out.strings[name] = c
	}
	return out
}
