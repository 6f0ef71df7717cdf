package adapt

import (
	"sort"

	"github.com/2beens/velotrain/internal/bodymetrics"
)

const (
	// readiness needs a full week of history before it may fire
	readinessMinDays = 7

	hrvDropThreshold  = -15.0
	rhrRiseThreshold  = 5.0
	minSleepMin       = 420.0
	tsbReduceBelow    = -10.0
	tsbProgressAbove  = 5.0
	precipSwapAbove   = 0.7
	windKphSwapAbove  = 30.0
	weightTrendDays   = 14
	weightLossFastKg  = -0.7
	weightLossSlowKg  = -0.2
	maintenanceDayTag = "maintenance"
)

const (
	DecisionReduce    = "Reduce"
	DecisionSwap      = "Swap"
	DecisionProgress  = "Progress"
	DecisionMaintain  = "Maintain"
	DecisionMoreKcal  = "Increase kcal"
	DecisionFewerKcal = "Reduce kcal modestly"
)

// Result is the single prioritized decision for today
type Result struct {
	Rule     string `json:"rule"`
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

type LoadRow struct {
	TSB    float64
	HasTSB bool
}

type WeatherRow struct {
	PrecipProb float64
	WindKph    float64
}

type Params struct {
	// daily observations ordered by date ascending, today last
	Readiness []bodymetrics.Observation
	Load      *LoadRow
	Weather   *WeatherRow
	// nutrition-day label of today's plan, e.g. "maintenance"
	NutritionDay string
}

type flag struct {
	rule     string
	decision string
	reason   string
}

// Engine evaluates today's readiness, load, weather and weight trend
// into one decision. Safety first: a back-off signal always outranks a
// push-harder signal.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Evaluate(params Params) Result {
	var flags []flag

	if f := e.readinessFlag(params.Readiness); f != nil {
		flags = append(flags, *f)
	}
	if f := e.loadFlag(params.Load); f != nil {
		flags = append(flags, *f)
	}
	if f := e.weatherFlag(params.Weather); f != nil {
		flags = append(flags, *f)
	}
	if f := e.weightTrendFlag(params.Readiness, params.NutritionDay); f != nil {
		flags = append(flags, *f)
	}

	if len(flags) == 0 {
		return Result{Rule: "None", Decision: DecisionMaintain, Reason: "No flags"}
	}
	for _, f := range flags {
		if f.decision == DecisionReduce {
			return Result{Rule: f.rule, Decision: f.decision, Reason: f.reason}
		}
	}
	for _, f := range flags {
		if f.decision == DecisionSwap {
			return Result{Rule: f.rule, Decision: f.decision, Reason: f.reason}
		}
	}
	for _, f := range flags {
		if f.decision == DecisionProgress {
			return Result{Rule: f.rule, Decision: f.decision, Reason: f.reason}
		}
	}
	first := flags[0]
	return Result{Rule: first.rule, Decision: first.decision, Reason: first.reason}
}

func (e *Engine) readinessFlag(history []bodymetrics.Observation) *flag {
	if len(history) < readinessMinDays {
		return nil
	}
	today := history[len(history)-1]

	sleepOK := today.SleepMin != nil && *today.SleepMin >= minSleepMin

	hrvRhrBad := false
	if today.HRVms != nil && today.RestingHR != nil {
		window := history[len(history)-readinessMinDays:]
		medHRV, hrvOK := medianOf(window, func(obs bodymetrics.Observation) *float64 { return obs.HRVms })
		medRHR, rhrOK := medianOf(window, func(obs bodymetrics.Observation) *float64 { return obs.RestingHR })
		if hrvOK && rhrOK {
			hrvDrop := *today.HRVms - medHRV
			rhrRise := *today.RestingHR - medRHR
			hrvRhrBad = hrvDrop < hrvDropThreshold && rhrRise > rhrRiseThreshold
		}
	}

	if hrvRhrBad || !sleepOK {
		return &flag{
			rule:     "Readiness",
			decision: DecisionReduce,
			reason:   "Low HRV/high RHR or poor sleep",
		}
	}
	return nil
}

func (e *Engine) loadFlag(load *LoadRow) *flag {
	if load == nil || !load.HasTSB {
		return nil
	}
	if load.TSB < tsbReduceBelow {
		return &flag{rule: "Load", decision: DecisionReduce, reason: "TSB < -10"}
	}
	if load.TSB > tsbProgressAbove {
		return &flag{rule: "Load", decision: DecisionProgress, reason: "TSB > +5"}
	}
	return nil
}

func (e *Engine) weatherFlag(weather *WeatherRow) *flag {
	if weather == nil {
		return nil
	}
	if weather.PrecipProb > precipSwapAbove || weather.WindKph > windKphSwapAbove {
		return &flag{rule: "Weather", decision: DecisionSwap, reason: "Bad weather: indoor or swap"}
	}
	return nil
}

// weightTrendFlag looks at the 2-week weight slope: losing too fast
// means eat more, stalling on a non-maintenance day means trim intake
func (e *Engine) weightTrendFlag(history []bodymetrics.Observation, nutritionDay string) *flag {
	if len(history) < weightTrendDays {
		return nil
	}
	latest := history[len(history)-1].WeightKg
	baseline := history[len(history)-weightTrendDays].WeightKg
	if latest == nil || baseline == nil {
		return nil
	}

	weeklyRate := (*latest - *baseline) / 2.0
	if weeklyRate < weightLossFastKg {
		return &flag{
			rule:     "Nutrition",
			decision: DecisionMoreKcal,
			reason:   "Weight loss >0.7 kg/week",
		}
	}
	if weeklyRate > weightLossSlowKg && nutritionDay != maintenanceDayTag {
		return &flag{
			rule:     "Nutrition",
			decision: DecisionFewerKcal,
			reason:   "Weight loss <0.2 kg/week",
		}
	}
	return nil
}

// medianOf computes the median of a field over the window, skipping
// days where the field was not observed
func medianOf(window []bodymetrics.Observation, pick func(bodymetrics.Observation) *float64) (float64, bool) {
	var values []float64
	for _, obs := range window {
		if v := pick(obs); v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid], true
	}
	return (values[mid-1] + values[mid]) / 2.0, true
}
