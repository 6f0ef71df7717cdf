package training

import "time"

const DefaultSundayFatigueGateTSS = 500

// Generator produces 7-day microcycles. The Sunday fatigue gate is the
// only feedback loop from realized load into the generated plan.
type Generator struct {
	sundayFatigueGateTSS int
}

func NewGenerator(sundayFatigueGateTSS int) *Generator {
	if sundayFatigueGateTSS <= 0 {
		sundayFatigueGateTSS = DefaultSundayFatigueGateTSS
	}
	return &Generator{
		sundayFatigueGateTSS: sundayFatigueGateTSS,
	}
}

type WeekPlanParams struct {
	FTPw         float64
	Block        *TrainingBlock // nil -> default 3 build + 1 recovery, never a recovery week
	StartDate    time.Time
	Fatigue7dTSS int
	Indoor       bool
}

// WeekPlan returns exactly 7 sessions, one per calendar day starting at
// params.StartDate.
func (g *Generator) WeekPlan(params WeekPlanParams) []Session {
	var blockStart *time.Time
	buildWeeks, recoveryWeeks := DefaultBuildWeeks, DefaultRecoveryWeeks
	if params.Block != nil {
		start := params.Block.StartDate
		blockStart = &start
		buildWeeks = params.Block.BuildWeeks
		recoveryWeeks = params.Block.RecoveryWeeks
	}
	recovery := IsRecoveryWeek(blockStart, buildWeeks, recoveryWeeks, params.StartDate)

	plan := make([]Session, 0, 7)
	for i := 0; i < 7; i++ {
		d := day(params.StartDate).AddDate(0, 0, i)
		if recovery {
			plan = append(plan, g.recoveryDay(d, params))
		} else {
			plan = append(plan, g.buildDay(d, params))
		}
	}
	return plan
}

func (g *Generator) recoveryDay(d time.Time, params WeekPlanParams) Session {
	switch weekdayMondayFirst(d) {
	case 0, 4: // Mon, Fri
		return SessionRest(d)
	case 1, 3: // Tue, Thu
		return SessionMobility(d, 35)
	case 2, 5: // Wed, Sat
		return SessionEndurance(d, 50, params.FTPw)
	default: // Sun
		return SessionEndurance(d, 60, params.FTPw)
	}
}

func (g *Generator) buildDay(d time.Time, params WeekPlanParams) Session {
	switch weekdayMondayFirst(d) {
	case 0:
		return SessionRest(d)
	case 1:
		return SessionEndurance(d, 75, params.FTPw)
	case 2:
		return SessionSweetSpot(d, params.FTPw, 2, 15)
	case 3:
		return SessionEndurance(d, 60, params.FTPw)
	case 4:
		return SessionMobility(d, 45)
	case 5:
		if params.Indoor {
			return SessionIndoorEndurance(d, params.FTPw)
		}
		return SessionLongEndurance(d, 3.0, params.FTPw)
	default:
		if params.Fatigue7dTSS >= g.sundayFatigueGateTSS {
			s := SessionEndurance(d, 90, params.FTPw)
			s.Title = "Endurance Z2 (fatigue gate)"
			s.AdjustedForFatigue = true
			return s
		}
		return SessionThreshold(d, params.FTPw, 3, 10)
	}
}

// weekdayMondayFirst maps time.Weekday to Mon=0 .. Sun=6
func weekdayMondayFirst(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}
