package ml

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Dataset is a header plus string rows, as read from a survey export.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

func LoadCSV(path, encoding string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dataset, err := ReadCSV(file, encoding)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return dataset, nil
}

func ReadCSV(r io.Reader, encoding string) (*Dataset, error) {
	decoded, err := decodeReader(r, encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(records) == 1 {
		return nil, fmt.Errorf("%w: header only", ErrEmptyDataset)
	}
	return &Dataset{Columns: records[0], Rows: records[1:]}, nil
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	case "gbk":
		return transform.NewReader(r, simplifiedchinese.GBK.NewDecoder()), nil
	case "gb18030":
		return transform.NewReader(r, simplifiedchinese.GB18030.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// TrimColumns strips surrounding whitespace from every column name.
func (d *Dataset) TrimColumns() {
	for i, name := range d.Columns {
		d.Columns[i] = strings.TrimSpace(name)
	}
}

func (d *Dataset) columnIndex(name string) int {
	for i, col := range d.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Select returns the feature matrix (in the given column order) and the
// target vector. Row width is guaranteed by the csv reader.
func (d *Dataset) Select(features []string, target string) ([][]string, []string, error) {
	if len(d.Rows) == 0 {
		return nil, nil, ErrEmptyDataset
	}

	missing := make([]string, 0)
	featureIdx := make([]int, len(features))
	for i, name := range features {
		featureIdx[i] = d.columnIndex(name)
		if featureIdx[i] < 0 {
			missing = append(missing, fmt.Sprintf("%q", name))
		}
	}
	targetIdx := d.columnIndex(target)
	if targetIdx < 0 {
		missing = append(missing, fmt.Sprintf("%q", target))
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	X := make([][]string, len(d.Rows))
	y := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		values := make([]string, len(featureIdx))
		for j, idx := range featureIdx {
			values[j] = row[idx]
		}
		X[i] = values
		y[i] = row[targetIdx]
	}
	return X, y, nil
}
