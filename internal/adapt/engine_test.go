package adapt

import (
	"testing"
	"time"

	"github.com/2beens/velotrain/internal/bodymetrics"

	"github.com/stretchr/testify/assert"
)

func fptr(v float64) *float64 { return &v }

// steadyHistory builds days of identical observations ending today
func steadyHistory(days int, hrv, rhr, sleep, weight float64) []bodymetrics.Observation {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	history := make([]bodymetrics.Observation, 0, days)
	for i := 0; i < days; i++ {
		history = append(history, bodymetrics.Observation{
			AthleteID: 1,
			Date:      start.AddDate(0, 0, i),
			HRVms:     fptr(hrv),
			RestingHR: fptr(rhr),
			SleepMin:  fptr(sleep),
			WeightKg:  fptr(weight),
		})
	}
	return history
}

func TestEngine_Evaluate_maintain(t *testing.T) {
	engine := NewEngine()

	result := engine.Evaluate(Params{
		Readiness:    steadyHistory(14, 60, 48, 460, 75),
		Load:         &LoadRow{TSB: 0, HasTSB: true},
		Weather:      &WeatherRow{PrecipProb: 0.1, WindKph: 10},
		NutritionDay: "maintenance",
	})

	assert.Equal(t, DecisionMaintain, result.Decision)
	assert.Equal(t, "None", result.Rule)
	assert.Equal(t, "No flags", result.Reason)
}

func TestEngine_Evaluate_readinessReduce(t *testing.T) {
	engine := NewEngine()

	history := steadyHistory(10, 60, 48, 460, 75)
	today := &history[len(history)-1]
	today.HRVms = fptr(40)     // 20 below the 7d median
	today.RestingHR = fptr(55) // 7 above

	result := engine.Evaluate(Params{Readiness: history, NutritionDay: "maintenance"})
	assert.Equal(t, DecisionReduce, result.Decision)
	assert.Equal(t, "Readiness", result.Rule)
}

func TestEngine_Evaluate_poorSleepAloneReduces(t *testing.T) {
	engine := NewEngine()

	history := steadyHistory(10, 60, 48, 460, 75)
	history[len(history)-1].SleepMin = fptr(300)

	result := engine.Evaluate(Params{Readiness: history, NutritionDay: "maintenance"})
	assert.Equal(t, DecisionReduce, result.Decision)
	assert.Equal(t, "Readiness", result.Rule)
}

func TestEngine_Evaluate_readinessNeedsFullWeek(t *testing.T) {
	engine := NewEngine()

	history := steadyHistory(6, 60, 48, 300, 75)
	result := engine.Evaluate(Params{Readiness: history, NutritionDay: "maintenance"})
	assert.Equal(t, DecisionMaintain, result.Decision)
}

func TestEngine_Evaluate_loadThresholds(t *testing.T) {
	engine := NewEngine()

	result := engine.Evaluate(Params{Load: &LoadRow{TSB: -10.5, HasTSB: true}})
	assert.Equal(t, DecisionReduce, result.Decision)
	assert.Equal(t, "Load", result.Rule)

	result = engine.Evaluate(Params{Load: &LoadRow{TSB: -10, HasTSB: true}})
	assert.Equal(t, DecisionMaintain, result.Decision)

	result = engine.Evaluate(Params{Load: &LoadRow{TSB: 5.5, HasTSB: true}})
	assert.Equal(t, DecisionProgress, result.Decision)

	result = engine.Evaluate(Params{Load: &LoadRow{TSB: 5, HasTSB: true}})
	assert.Equal(t, DecisionMaintain, result.Decision)
}

func TestEngine_Evaluate_weatherSwap(t *testing.T) {
	engine := NewEngine()

	result := engine.Evaluate(Params{Weather: &WeatherRow{PrecipProb: 0.8}})
	assert.Equal(t, DecisionSwap, result.Decision)
	assert.Equal(t, "Weather", result.Rule)

	result = engine.Evaluate(Params{Weather: &WeatherRow{WindKph: 35}})
	assert.Equal(t, DecisionSwap, result.Decision)

	result = engine.Evaluate(Params{Weather: &WeatherRow{PrecipProb: 0.7, WindKph: 30}})
	assert.Equal(t, DecisionMaintain, result.Decision)
}

func TestEngine_Evaluate_reduceOutranksProgress(t *testing.T) {
	engine := NewEngine()

	// readiness says back off, load says push: back off must win
	history := steadyHistory(10, 60, 48, 460, 75)
	history[len(history)-1].SleepMin = fptr(300)

	result := engine.Evaluate(Params{
		Readiness:    history,
		Load:         &LoadRow{TSB: 12, HasTSB: true},
		NutritionDay: "maintenance",
	})

	assert.Equal(t, DecisionReduce, result.Decision)
	assert.Equal(t, "Readiness", result.Rule)
}

func TestEngine_Evaluate_swapOutranksProgress(t *testing.T) {
	engine := NewEngine()

	result := engine.Evaluate(Params{
		Load:    &LoadRow{TSB: 12, HasTSB: true},
		Weather: &WeatherRow{PrecipProb: 0.9},
	})

	assert.Equal(t, DecisionSwap, result.Decision)
}

func TestEngine_Evaluate_weightTrend(t *testing.T) {
	engine := NewEngine()

	// dropping 1.6kg over two weeks is too fast
	history := steadyHistory(14, 60, 48, 460, 75)
	history[len(history)-1].WeightKg = fptr(73.4)

	result := engine.Evaluate(Params{Readiness: history, NutritionDay: "maintenance"})
	assert.Equal(t, DecisionMoreKcal, result.Decision)
	assert.Equal(t, "Nutrition", result.Rule)

	// flat weight on a non-maintenance day means trim intake
	history = steadyHistory(14, 60, 48, 460, 75)
	result = engine.Evaluate(Params{Readiness: history, NutritionDay: "training_day"})
	assert.Equal(t, DecisionFewerKcal, result.Decision)

	// flat weight at maintenance is fine
	result = engine.Evaluate(Params{Readiness: history, NutritionDay: "maintenance"})
	assert.Equal(t, DecisionMaintain, result.Decision)
}

func TestEngine_Evaluate_reduceOutranksNutrition(t *testing.T) {
	engine := NewEngine()

	history := steadyHistory(14, 60, 48, 460, 75)
	history[len(history)-1].WeightKg = fptr(73.0)
	history[len(history)-1].SleepMin = fptr(200)

	result := engine.Evaluate(Params{Readiness: history, NutritionDay: "maintenance"})
	assert.Equal(t, DecisionReduce, result.Decision)
	assert.Equal(t, "Readiness", result.Rule)
}

func TestMedianOf(t *testing.T) {
	window := []bodymetrics.Observation{
		{HRVms: fptr(50)},
		{HRVms: nil},
		{HRVms: fptr(70)},
		{HRVms: fptr(60)},
	}

	median, ok := medianOf(window, func(obs bodymetrics.Observation) *float64 { return obs.HRVms })
	assert.True(t, ok)
	assert.InDelta(t, 60, median, 0.001)

	_, ok = medianOf([]bodymetrics.Observation{{}}, func(obs bodymetrics.Observation) *float64 { return obs.HRVms })
	assert.False(t, ok)
}
