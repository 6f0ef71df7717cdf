package training

import "time"

const (
	DefaultBuildWeeks    = 3
	DefaultRecoveryWeeks = 1
)

// TrainingBlock defines a repeating build/recovery cycle for an athlete.
// An athlete can have several; the generator uses the most recently
// started one.
type TrainingBlock struct {
	ID            int       `json:"id"`
	AthleteID     int       `json:"athleteId"`
	StartDate     time.Time `json:"startDate"`
	BuildWeeks    int       `json:"buildWeeks"`
	RecoveryWeeks int       `json:"recoveryWeeks"`
}

// IsRecoveryWeek reports whether ref falls into the recovery part of
// the cycle. Unknown block start never counts as recovery.
func IsRecoveryWeek(blockStart *time.Time, buildWeeks, recoveryWeeks int, ref time.Time) bool {
	if blockStart == nil || buildWeeks <= 0 {
		return false
	}
	cycle := buildWeeks + recoveryWeeks
	if cycle <= 0 {
		return false
	}

	daysIn := int(day(ref).Sub(day(*blockStart)).Hours() / 24)
	if daysIn < 0 {
		return false
	}
	weekIndex := daysIn / 7
	return (weekIndex % cycle) >= buildWeeks
}
