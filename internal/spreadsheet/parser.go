package spreadsheet

import (
	"strconv"
	"time"

	"github.com/nutriadmin/admin-api/internal/model"
)

type rowState int

const (
	awaitingSubject rowState = iota
	inSubjectRun
)

// Parser turns a measurement sheet into a ParsedDocument.
type Parser struct {
	layout Layout
	now    func() time.Time
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithClock overrides the clock used when the session date is unreadable.
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) { p.now = now }
}

// NewParser creates a parser for layout, filling unset limits and patterns
// from DefaultLayout.
func NewParser(layout Layout, opts ...ParserOption) *Parser {
	if layout.MaxRows <= 0 {
		layout.MaxRows = DefaultLayout().MaxRows
	}
	if layout.MaxEmptyRun <= 0 {
		layout.MaxEmptyRun = DefaultLayout().MaxEmptyRun
	}
	if layout.NonSubject == nil {
		layout.NonSubject = defaultMarkerPattern
	}
	if layout.RunEnd == nil {
		layout.RunEnd = defaultRunEndPattern
	}
	p := &Parser{layout: layout, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse walks the data region row by row. A column-A value that looks like a
// name starts a new subject; an aggregate row such as TOTAL ends the current
// one; any other row continues it, so a subject spanning several rows keeps
// each row as a separate measurement.
func (p *Parser) Parse(sheet Sheet) *model.ParsedDocument {
	doc := &model.ParsedDocument{SessionDate: p.sessionDate(sheet)}

	var (
		state   = awaitingSubject
		current string
		order   []string
		bySubj  = make(map[string][]model.Measurement)
		empty   int
	)

	end := p.layout.FirstDataRow + p.layout.MaxRows
	for row := p.layout.FirstDataRow; row < end; row++ {
		marker := sheet.Cell(row, ColumnSubject)
		if marker == "" {
			empty++
			if empty > p.layout.MaxEmptyRun {
				break
			}
		} else {
			empty = 0
			switch {
			case p.layout.RunEnd.MatchString(marker):
				state = awaitingSubject
			case p.isSubject(marker):
				current = model.DisplayName(marker)
				state = inSubjectRun
				if _, seen := bySubj[current]; !seen {
					order = append(order, current)
					bySubj[current] = nil
				}
			}
		}

		if state != inSubjectRun {
			continue
		}
		bySubj[current] = append(bySubj[current], p.measurement(sheet, row, current))
	}

	for _, name := range order {
		for _, m := range bySubj[name] {
			if m.Usable() {
				doc.Measurements = append(doc.Measurements, m)
			}
		}
	}
	doc.RecordCount = len(doc.Measurements)
	return doc
}

func (p *Parser) sessionDate(sheet Sheet) time.Time {
	if d := CoerceDate(sheet.Cell(p.layout.SessionDateRow, p.layout.SessionDateColumn)); d != nil {
		return model.DateOnly(*d)
	}
	return model.DateOnly(p.now())
}

func (p *Parser) isSubject(marker string) bool {
	if _, err := strconv.ParseFloat(marker, 64); err == nil {
		return false
	}
	return !p.layout.NonSubject.MatchString(marker)
}

func (p *Parser) measurement(sheet Sheet, row int, subject string) model.Measurement {
	m := model.Measurement{
		SubjectName: subject,
		MeasuredOn:  CoerceDate(sheet.Cell(row, ColumnDate)),
	}
	for _, f := range Fields {
		f.Set(&m.Anthropometrics, CoerceNumeric(sheet.Cell(row, f.Column)))
	}
	return m
}
