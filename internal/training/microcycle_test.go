package training

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monday 2025-03-10
var testWeekStart = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func TestGenerator_WeekPlan_sevenContiguousDays(t *testing.T) {
	generator := NewGenerator(0)

	for _, startOffset := range []int{0, 1, 2, 3, 4, 5, 6} {
		start := testWeekStart.AddDate(0, 0, startOffset)
		plan := generator.WeekPlan(WeekPlanParams{FTPw: 250, StartDate: start})

		require.Len(t, plan, 7)
		for i, session := range plan {
			assert.Equal(t, start.AddDate(0, 0, i), session.Date)
		}
	}
}

func TestGenerator_WeekPlan_buildWeek(t *testing.T) {
	generator := NewGenerator(0)
	plan := generator.WeekPlan(WeekPlanParams{FTPw: 250, StartDate: testWeekStart})
	require.Len(t, plan, 7)

	monday, tuesday, wednesday := plan[0], plan[1], plan[2]
	assert.Equal(t, "rest", monday.Sport)
	assert.Equal(t, "Endurance Z2", tuesday.Title)
	assert.Equal(t, 75, tuesday.DurationMin)
	assert.Contains(t, wednesday.Title, "Sweet Spot 2x15min")
	// 20min overhead + 2x15 work + one 5min recovery
	assert.Equal(t, 55, wednesday.DurationMin)

	saturday := plan[5]
	assert.Equal(t, "Long Endurance 3.0h", saturday.Title)
	assert.Equal(t, 180, saturday.DurationMin)
	assert.False(t, saturday.IndoorOK)
	require.NotNil(t, saturday.TargetPower)
	assert.InDelta(t, 150, saturday.TargetPower.LowW, 0.001)
	assert.InDelta(t, 187.5, saturday.TargetPower.HighW, 0.001)

	sunday := plan[6]
	assert.Contains(t, sunday.Title, "Threshold 3x10min")
	require.NotNil(t, sunday.TargetPower)
	assert.InDelta(t, 237.5, sunday.TargetPower.LowW, 0.001)
	assert.InDelta(t, 250, sunday.TargetPower.HighW, 0.001)
	assert.False(t, sunday.AdjustedForFatigue)
}

func TestGenerator_WeekPlan_indoorSaturday(t *testing.T) {
	generator := NewGenerator(0)
	plan := generator.WeekPlan(WeekPlanParams{FTPw: 250, StartDate: testWeekStart, Indoor: true})

	saturday := plan[5]
	assert.Equal(t, "Indoor Endurance Builder 2.0h", saturday.Title)
	assert.Equal(t, 120, saturday.DurationMin)
	assert.True(t, saturday.IndoorOK)
}

func TestGenerator_WeekPlan_sundayFatigueGate(t *testing.T) {
	generator := NewGenerator(500)

	// just below the gate: threshold work stays
	plan := generator.WeekPlan(WeekPlanParams{FTPw: 250, StartDate: testWeekStart, Fatigue7dTSS: 499})
	sunday := plan[6]
	assert.Contains(t, sunday.Title, "Threshold")
	assert.False(t, sunday.AdjustedForFatigue)

	// at the gate: swap to easy endurance
	plan = generator.WeekPlan(WeekPlanParams{FTPw: 250, StartDate: testWeekStart, Fatigue7dTSS: 500})
	sunday = plan[6]
	assert.Equal(t, "Endurance Z2 (fatigue gate)", sunday.Title)
	assert.Equal(t, 90, sunday.DurationMin)
	assert.True(t, sunday.AdjustedForFatigue)
	require.NotNil(t, sunday.TargetPower)
	assert.InDelta(t, 140, sunday.TargetPower.LowW, 0.001)
	assert.InDelta(t, 187.5, sunday.TargetPower.HighW, 0.001)
}

func TestGenerator_WeekPlan_recoveryWeekPeriodicity(t *testing.T) {
	generator := NewGenerator(0)
	block := &TrainingBlock{
		AthleteID:     1,
		StartDate:     testWeekStart,
		BuildWeeks:    3,
		RecoveryWeeks: 1,
	}

	isRecoveryPlan := func(plan []Session) bool {
		// recovery weeks have no interval work at all
		for _, s := range plan {
			if s.IntensityFactor > ZoneTargetIF["endurance"] {
				return false
			}
		}
		return true
	}

	// weeks 0..7: build build build recovery, repeating
	expected := []bool{false, false, false, true, false, false, false, true}
	for week, wantRecovery := range expected {
		start := testWeekStart.AddDate(0, 0, week*7)
		plan := generator.WeekPlan(WeekPlanParams{FTPw: 250, Block: block, StartDate: start})
		assert.Equal(t, wantRecovery, isRecoveryPlan(plan), "week %d", week)
	}
}

func TestGenerator_WeekPlan_noBlockNeverRecovery(t *testing.T) {
	generator := NewGenerator(0)
	for week := 0; week < 8; week++ {
		start := testWeekStart.AddDate(0, 0, week*7)
		plan := generator.WeekPlan(WeekPlanParams{FTPw: 250, StartDate: start})
		assert.Contains(t, plan[6].Title, "Threshold", "week %d", week)
	}
}

func TestGenerator_WeekPlan_unknownFTPHasNoPowerTargets(t *testing.T) {
	generator := NewGenerator(0)
	plan := generator.WeekPlan(WeekPlanParams{FTPw: 0, StartDate: testWeekStart})

	for _, session := range plan {
		assert.Nil(t, session.TargetPower, session.Title)
	}
}

func TestIsRecoveryWeek(t *testing.T) {
	start := testWeekStart

	assert.False(t, IsRecoveryWeek(nil, 3, 1, start))
	assert.False(t, IsRecoveryWeek(&start, 0, 1, start))
	// before the block even starts
	assert.False(t, IsRecoveryWeek(&start, 3, 1, start.AddDate(0, 0, -3)))

	assert.False(t, IsRecoveryWeek(&start, 3, 1, start))
	assert.False(t, IsRecoveryWeek(&start, 3, 1, start.AddDate(0, 0, 20)))
	assert.True(t, IsRecoveryWeek(&start, 3, 1, start.AddDate(0, 0, 21)))
	assert.True(t, IsRecoveryWeek(&start, 3, 1, start.AddDate(0, 0, 27)))
	assert.False(t, IsRecoveryWeek(&start, 3, 1, start.AddDate(0, 0, 28)))

	// 2 build + 2 recovery
	assert.False(t, IsRecoveryWeek(&start, 2, 2, start.AddDate(0, 0, 13)))
	assert.True(t, IsRecoveryWeek(&start, 2, 2, start.AddDate(0, 0, 14)))
	assert.True(t, IsRecoveryWeek(&start, 2, 2, start.AddDate(0, 0, 27)))
	assert.False(t, IsRecoveryWeek(&start, 2, 2, start.AddDate(0, 0, 28)))
}
