package spreadsheet

import (
	"regexp"

	"github.com/nutriadmin/admin-api/internal/model"
)

// Column indexes are zero-based: A=0, B=1, ...
const (
	ColumnSubject = 0
	ColumnDate    = 1
)

// Field binds one numeric column to its Anthropometrics field.
type Field struct {
	Name   string
	Column int
	target func(*model.Anthropometrics) **float64
}

// Fields lists the numeric columns D..AF in sheet order.
var Fields = []Field{
	{"weight", 3, func(a *model.Anthropometrics) **float64 { return &a.Weight }},
	{"height", 4, func(a *model.Anthropometrics) **float64 { return &a.Height }},
	{"seated_height", 5, func(a *model.Anthropometrics) **float64 { return &a.SeatedHeight }},
	{"humerus_diameter", 6, func(a *model.Anthropometrics) **float64 { return &a.HumerusDiameter }},
	{"femur_diameter", 7, func(a *model.Anthropometrics) **float64 { return &a.FemurDiameter }},
	{"wrist_diameter", 8, func(a *model.Anthropometrics) **float64 { return &a.WristDiameter }},
	{"arm_relaxed_girth", 9, func(a *model.Anthropometrics) **float64 { return &a.ArmRelaxedGirth }},
	{"arm_flexed_girth", 10, func(a *model.Anthropometrics) **float64 { return &a.ArmFlexedGirth }},
	{"waist_girth", 11, func(a *model.Anthropometrics) **float64 { return &a.WaistGirth }},
	{"hip_girth", 12, func(a *model.Anthropometrics) **float64 { return &a.HipGirth }},
	{"mid_thigh_girth", 13, func(a *model.Anthropometrics) **float64 { return &a.MidThighGirth }},
	{"calf_girth", 14, func(a *model.Anthropometrics) **float64 { return &a.CalfGirth }},
	{"triceps_skinfold", 15, func(a *model.Anthropometrics) **float64 { return &a.TricepsSkinfold }},
	{"subscapular_skinfold", 16, func(a *model.Anthropometrics) **float64 { return &a.SubscapularSkinfold }},
	{"biceps_skinfold", 17, func(a *model.Anthropometrics) **float64 { return &a.BicepsSkinfold }},
	{"iliac_crest_skinfold", 18, func(a *model.Anthropometrics) **float64 { return &a.IliacCrestSkinfold }},
	{"supraspinale_skinfold", 19, func(a *model.Anthropometrics) **float64 { return &a.SupraspinaleSkinfold }},
	{"abdominal_skinfold", 20, func(a *model.Anthropometrics) **float64 { return &a.AbdominalSkinfold }},
	{"thigh_skinfold", 21, func(a *model.Anthropometrics) **float64 { return &a.ThighSkinfold }},
	{"calf_skinfold", 22, func(a *model.Anthropometrics) **float64 { return &a.CalfSkinfold }},
	{"bmi", 23, func(a *model.Anthropometrics) **float64 { return &a.BMI }},
	{"waist_hip_ratio", 24, func(a *model.Anthropometrics) **float64 { return &a.WaistHipRatio }},
	{"fat_percent", 25, func(a *model.Anthropometrics) **float64 { return &a.FatPercent }},
	{"fat_mass_kg", 26, func(a *model.Anthropometrics) **float64 { return &a.FatMassKg }},
	{"muscle_mass_kg", 27, func(a *model.Anthropometrics) **float64 { return &a.MuscleMassKg }},
	{"bone_mass_kg", 28, func(a *model.Anthropometrics) **float64 { return &a.BoneMassKg }},
	{"residual_mass_kg", 29, func(a *model.Anthropometrics) **float64 { return &a.ResidualMassKg }},
	{"sum_six_skinfolds", 30, func(a *model.Anthropometrics) **float64 { return &a.SumSixSkinfolds }},
	{"sum_eight_skinfolds", 31, func(a *model.Anthropometrics) **float64 { return &a.SumEightSkinfolds }},
}

// Set stores v into the field of a.
func (f Field) Set(a *model.Anthropometrics, v *float64) {
	*f.target(a) = v
}

// Get returns the field's value from a.
func (f Field) Get(a *model.Anthropometrics) *float64 {
	return *f.target(a)
}

var (
	defaultMarkerPattern = regexp.MustCompile(`(?i)^\s*(nombres?|apellidos?|pacientes?|jugador(a|es)?|deportistas?)\b`)
	defaultRunEndPattern = regexp.MustCompile(`(?i)^\s*(total(es)?|promedios?|media)\b`)
)

// Layout locates the header and data region of a sheet. Rows are zero-based.
type Layout struct {
	SessionDateRow    int
	SessionDateColumn int
	FirstDataRow      int
	MaxRows           int
	MaxEmptyRun       int
	// NonSubject matches column-A text that is never a subject name.
	NonSubject *regexp.Regexp
	// RunEnd matches aggregate rows (totals, averages). Such a row closes the
	// current subject and is not read.
	RunEnd *regexp.Regexp
}

// DefaultLayout is the association's measurement template: session date in
// B4, data from row 7.
func DefaultLayout() Layout {
	return Layout{
		SessionDateRow:    3,
		SessionDateColumn: 1,
		FirstDataRow:      6,
		MaxRows:           1000,
		MaxEmptyRun:       20,
		NonSubject:        defaultMarkerPattern,
		RunEnd:            defaultRunEndPattern,
	}
}
