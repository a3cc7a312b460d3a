package model

import (
	"time"

	"github.com/google/uuid"
)

// Anthropometrics holds the numeric fields of one measurement row. A nil field
// means the cell was empty or could not be read as a number.
type Anthropometrics struct {
	Weight       *float64 `db:"weight" json:"weight"`
	Height       *float64 `db:"height" json:"height"`
	SeatedHeight *float64 `db:"seated_height" json:"seated_height"`

	HumerusDiameter *float64 `db:"humerus_diameter" json:"humerus_diameter"`
	FemurDiameter   *float64 `db:"femur_diameter" json:"femur_diameter"`
	WristDiameter   *float64 `db:"wrist_diameter" json:"wrist_diameter"`

	ArmRelaxedGirth *float64 `db:"arm_relaxed_girth" json:"arm_relaxed_girth"`
	ArmFlexedGirth  *float64 `db:"arm_flexed_girth" json:"arm_flexed_girth"`
	WaistGirth      *float64 `db:"waist_girth" json:"waist_girth"`
	HipGirth        *float64 `db:"hip_girth" json:"hip_girth"`
	MidThighGirth   *float64 `db:"mid_thigh_girth" json:"mid_thigh_girth"`
	CalfGirth       *float64 `db:"calf_girth" json:"calf_girth"`

	TricepsSkinfold      *float64 `db:"triceps_skinfold" json:"triceps_skinfold"`
	SubscapularSkinfold  *float64 `db:"subscapular_skinfold" json:"subscapular_skinfold"`
	BicepsSkinfold       *float64 `db:"biceps_skinfold" json:"biceps_skinfold"`
	IliacCrestSkinfold   *float64 `db:"iliac_crest_skinfold" json:"iliac_crest_skinfold"`
	SupraspinaleSkinfold *float64 `db:"supraspinale_skinfold" json:"supraspinale_skinfold"`
	AbdominalSkinfold    *float64 `db:"abdominal_skinfold" json:"abdominal_skinfold"`
	ThighSkinfold        *float64 `db:"thigh_skinfold" json:"thigh_skinfold"`
	CalfSkinfold         *float64 `db:"calf_skinfold" json:"calf_skinfold"`

	BMI           *float64 `db:"bmi" json:"bmi"`
	WaistHipRatio *float64 `db:"waist_hip_ratio" json:"waist_hip_ratio"`

	FatPercent     *float64 `db:"fat_percent" json:"fat_percent"`
	FatMassKg      *float64 `db:"fat_mass_kg" json:"fat_mass_kg"`
	MuscleMassKg   *float64 `db:"muscle_mass_kg" json:"muscle_mass_kg"`
	BoneMassKg     *float64 `db:"bone_mass_kg" json:"bone_mass_kg"`
	ResidualMassKg *float64 `db:"residual_mass_kg" json:"residual_mass_kg"`

	SumSixSkinfolds   *float64 `db:"sum_six_skinfolds" json:"sum_six_skinfolds"`
	SumEightSkinfolds *float64 `db:"sum_eight_skinfolds" json:"sum_eight_skinfolds"`
}

// Measurement is one subject's row as read from a spreadsheet.
type Measurement struct {
	SubjectName string     `json:"subject_name"`
	MeasuredOn  *time.Time `json:"measured_on"`
	Anthropometrics
}

// Usable reports whether the row carries a subject and at least one of the
// core anthropometric values.
func (m Measurement) Usable() bool {
	if m.SubjectName == "" {
		return false
	}
	return m.Weight != nil || m.Height != nil || m.BMI != nil
}

// ParsedDocument is the parser output for one uploaded file.
type ParsedDocument struct {
	SessionDate  time.Time     `json:"session_date"`
	Measurements []Measurement `json:"measurements"`
	RecordCount  int           `json:"record_count"`
}

// MeasurementRecord is the persisted form of a Measurement.
type MeasurementRecord struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	ImportedByID    uuid.UUID  `db:"imported_by" json:"imported_by"`
	ImportSessionID uuid.UUID  `db:"import_session_id" json:"import_session_id"`
	MeasuredOn      *time.Time `db:"measured_on" json:"measured_on"`
	RecordedAt      time.Time  `db:"recorded_at" json:"recorded_at"`
	Anthropometrics
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay compares two optional dates by calendar day. Two nil dates match.
func SameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return DateOnly(*a).Equal(DateOnly(*b))
}
