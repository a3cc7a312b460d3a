package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoSheets is returned for a workbook without worksheets.
var ErrNoSheets = errors.New("workbook has no sheets")

// Sheet is a random-access grid of raw cell values, row-major.
type Sheet [][]string

// Cell returns the trimmed raw value at (row, col), or "" outside the grid.
func (s Sheet) Cell(row, col int) string {
	if row < 0 || row >= len(s) || col < 0 || col >= len(s[row]) {
		return ""
	}
	return strings.TrimSpace(s[row][col])
}

// ReadWorkbook loads the first worksheet of an xlsx workbook. Cells keep their
// raw values, so date cells come back as serial numbers.
func ReadWorkbook(data []byte) (Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %q: %w", sheets[0], err)
	}
	return Sheet(rows), nil
}
