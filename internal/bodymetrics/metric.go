package bodymetrics

import (
	"errors"
	"time"
)

var ErrUnknownField = errors.New("unknown body metrics field")

// Field enumerates the supported observation fields. Queries picking
// the "latest non-null value" are keyed by this enum - an explicit
// whitelist, no reflective column lookup.
type Field string

const (
	FieldWeightKg   Field = "weight_kg"
	FieldBodyFatPct Field = "bodyfat_pct"
	FieldVO2Max     Field = "vo2max_mlkgmin"
	FieldRestingHR  Field = "resting_hr_bpm"
	FieldFTPw       Field = "ftp_w"
	FieldHRVms      Field = "hrv_ms"
	FieldSleepMin   Field = "sleep_min"
)

// column returns the backing column name, or empty for unknown fields
func (f Field) column() string {
	switch f {
	case FieldWeightKg, FieldBodyFatPct, FieldVO2Max, FieldRestingHR, FieldFTPw, FieldHRVms, FieldSleepMin:
		return string(f)
	default:
		return ""
	}
}

// Observation is one athlete day: at most one row per (athlete, date),
// later imports and logs merge into the existing day instead of
// duplicating it. Nil fields mean not observed that day.
type Observation struct {
	ID         int       `json:"id"`
	AthleteID  int       `json:"athleteId"`
	Date       time.Time `json:"date"`
	WeightKg   *float64  `json:"weightKg"`
	BodyFatPct *float64  `json:"bodyfatPct"`
	VO2Max     *float64  `json:"vo2maxMlkgmin"`
	RestingHR  *float64  `json:"restingHrBpm"`
	FTPw       *float64  `json:"ftpW"`
	HRVms      *float64  `json:"hrvMs"`
	SleepMin   *float64  `json:"sleepMin"`
	FTPSource  string    `json:"ftpSource,omitempty"`
}
