package spreadsheet

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// CoerceNumeric reads a cell as a number. Empty cells, text, and anything
// containing '/' or '-' (a date that bled into a numeric column) yield nil.
func CoerceNumeric(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(s, "/-") {
		return nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// CoerceDate reads a cell as a date. It accepts a spreadsheet date serial or
// DD/MM/YYYY text; anything else yields nil.
func CoerceDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if strings.Contains(s, "/") {
		return parseDayMonthYear(s)
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 {
		return nil
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil
	}
	return &t
}

func parseDayMonthYear(s string) *time.Time {
	// "15/01/2025 10:30" keeps only the date
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return nil
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || year < 0 {
		return nil
	}
	if len(parts[2]) <= 2 {
		year += 2000
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31/02 into March; reject instead
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return nil
	}
	return &t
}
