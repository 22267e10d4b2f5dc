package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoCriterionColumn is returned when a checklist has no criterion column.
var ErrNoCriterionColumn = errors.New("checklist has no criterion column")

const criterionColumn = "criterion"

// ReadChecklist returns the non-blank cells of the criterion column in file
// order. The header is matched case-insensitively after trimming.
func ReadChecklist(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoCriterionColumn
	}
	if err != nil {
		return nil, fmt.Errorf("reading checklist header: %w", err)
	}

	col := -1
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(h), criterionColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoCriterionColumn
	}

	var criteria []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading checklist: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if c := strings.TrimSpace(rec[col]); c != "" {
			criteria = append(criteria, c)
		}
	}
	return criteria, nil
}

// ReadChecklistFile opens path and reads it with ReadChecklist.
func ReadChecklistFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	criteria, err := ReadChecklist(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return criteria, nil
}
