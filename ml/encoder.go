package ml

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// OneHotEncoder maps every categorical column to one indicator per category
// seen during Fit. Unknown categories encode to all zeros for their column.
type OneHotEncoder struct {
	Columns    []string   `json:"columns"`
	Categories [][]string `json:"categories"`

	index   []map[string]int
	offsets []int
	width   int
}

func (e *OneHotEncoder) Fit(columns []string, X [][]string) error {
	if len(X) == 0 {
		return ErrEmptyDataset
	}
	if len(columns) == 0 {
		return errors.New("no columns to encode")
	}

	seen := make([]map[string]bool, len(columns))
	for i := range seen {
		seen[i] = make(map[string]bool)
	}
	for r, row := range X {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d: expected %d features, got %d", r, len(columns), len(row))
		}
		for c, value := range row {
			seen[c][value] = true
		}
	}

	categories := make([][]string, len(columns))
	for c := range columns {
		values := make([]string, 0, len(seen[c]))
		for value := range seen[c] {
			values = append(values, value)
		}
		sort.Strings(values)
		categories[c] = values
	}

	e.Columns = append([]string(nil), columns...)
	e.Categories = categories
	e.buildIndex()
	return nil
}

// buildIndex prepares lookup tables. It must run before the encoder is
// shared between goroutines.
func (e *OneHotEncoder) buildIndex() {
	e.index = make([]map[string]int, len(e.Categories))
	e.offsets = make([]int, len(e.Categories))
	width := 0
	for c, values := range e.Categories {
		e.offsets[c] = width
		e.index[c] = make(map[string]int, len(values))
		for i, value := range values {
			e.index[c][value] = i
		}
		width += len(values)
	}
	e.width = width
}

// Width is the number of encoded columns.
func (e *OneHotEncoder) Width() int {
	return e.width
}

// FeatureNames names every encoded column as "column=category".
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0, e.width)
	for c, values := range e.Categories {
		for _, value := range values {
			names = append(names, e.Columns[c]+"="+value)
		}
	}
	return names
}

func (e *OneHotEncoder) Transform(X [][]string) (*mat.Dense, error) {
	if e.width == 0 {
		return nil, errors.New("encoder not fitted")
	}
	if len(X) == 0 {
		return nil, ErrEmptyDataset
	}

	encoded := mat.NewDense(len(X), e.width, nil)
	for r, row := range X {
		if len(row) != len(e.Columns) {
			return nil, fmt.Errorf("expected %d features, got %d", len(e.Columns), len(row))
		}
		for c, value := range row {
			if i, ok := e.index[c][value]; ok {
				encoded.Set(r, e.offsets[c]+i, 1)
			}
		}
	}
	return encoded, nil
}

func (e *OneHotEncoder) FitTransform(columns []string, X [][]string) (*mat.Dense, error) {
	if err := e.Fit(columns, X); err != nil {
		return nil, err
	}
	return e.Transform(X)
}
