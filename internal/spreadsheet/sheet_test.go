package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, values map[string]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for cell, v := range values {
		require.NoError(t, f.SetCellValue("Sheet1", cell, v))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadWorkbookKeepsRawValues(t *testing.T) {
	data := buildWorkbook(t, map[string]interface{}{
		"B4": 45672,
		"A7": "Ana Pérez",
		"B7": 45672,
		"D7": 60,
		"E7": 165.5,
		"B8": "20/02/2025",
		"D8": 61,
	})

	sheet, err := ReadWorkbook(data)
	require.NoError(t, err)

	assert.Equal(t, "45672", sheet.Cell(3, 1))
	assert.Equal(t, "Ana Pérez", sheet.Cell(6, 0))
	assert.Equal(t, "165.5", sheet.Cell(6, 4))
	assert.Equal(t, "20/02/2025", sheet.Cell(7, 1))
	assert.Equal(t, "", sheet.Cell(7, 0))
	assert.Equal(t, "", sheet.Cell(500, 40))

	doc := newTestParser().Parse(sheet)
	require.Len(t, doc.Measurements, 2)
	assert.True(t, at(2025, 1, 15, 0).Equal(doc.SessionDate))
	assert.Equal(t, 165.5, *doc.Measurements[0].Height)
	assert.True(t, at(2025, 2, 20, 0).Equal(*doc.Measurements[1].MeasuredOn))
}

func TestReadWorkbookRejectsGarbage(t *testing.T) {
	_, err := ReadWorkbook([]byte("nombre;peso\nana;60\n"))
	assert.Error(t, err)
}

func TestSheetCellBounds(t *testing.T) {
	s := Sheet{{" a "}, {}}

	assert.Equal(t, "a", s.Cell(0, 0))
	assert.Equal(t, "", s.Cell(0, 1))
	assert.Equal(t, "", s.Cell(1, 0))
	assert.Equal(t, "", s.Cell(-1, 0))
	assert.Equal(t, "", s.Cell(2, 0))
}
