// Package dataset reads labelled and unlabelled examples from CSV and writes predictions.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ppiankov/fabula/internal/model"
)

// ErrMissingColumn is returned when a required column is absent from the header
var ErrMissingColumn = errors.New("missing required column")

// Column aliases, first match wins
var (
	idColumns        = []string{"id"}
	bookColumns      = []string{"book_name", "book"}
	backstoryColumns = []string{"content", "backstory"}
	labelColumns     = []string{"label"}
)

// Read parses examples from CSV. The label column is optional; rows with an
// empty label are unlabelled.
func Read(r io.Reader) ([]model.Example, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := indexHeader(header)
	idCol, err := require(cols, idColumns)
	if err != nil {
		return nil, err
	}
	bookCol, err := require(cols, bookColumns)
	if err != nil {
		return nil, err
	}
	backstoryCol, err := require(cols, backstoryColumns)
	if err != nil {
		return nil, err
	}
	labelCol := find(cols, labelColumns)

	var examples []model.Example
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		ex := model.Example{
			ID:        field(record, idCol),
			Book:      field(record, bookCol),
			Backstory: field(record, backstoryCol),
		}
		if labelCol >= 0 {
			if label := field(record, labelCol); label != "" {
				ex.Label = label
				ex.HasLabel = true
			}
		}
		examples = append(examples, ex)
	}

	return examples, nil
}

// ReadFile parses examples from a CSV file
func ReadFile(path string) ([]model.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	examples, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return examples, nil
}

// WritePredictions writes an id,label CSV with labels as 1 (consistent) or 0
func WritePredictions(w io.Writer, predictions []model.Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "label"}); err != nil {
		return err
	}
	for _, p := range predictions {
		if err := cw.Write([]string{p.ID, strconv.Itoa(p.Label)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePredictionsFile writes predictions to path
func WritePredictionsFile(path string, predictions []model.Prediction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := WritePredictions(f, predictions); err != nil {
		_ = f.Close()
		return fmt.Errorf("write predictions: %w", err)
	}
	return f.Close()
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}

func find(cols map[string]int, aliases []string) int {
	for _, a := range aliases {
		if i, ok := cols[a]; ok {
			return i
		}
	}
	return -1
}

func require(cols map[string]int, aliases []string) (int, error) {
	if i := find(cols, aliases); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(aliases, " or "))
}

func field(record []string, i int) string {
	if i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
