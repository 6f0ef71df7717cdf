package plan

import (
	"context"
	"testing"
	"time"

	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAthleteRepo struct {
	athletes map[int]athlete.Athlete
}

func (f *fakeAthleteRepo) Get(_ context.Context, id int) (athlete.Athlete, error) {
	a, ok := f.athletes[id]
	if !ok {
		return athlete.Athlete{}, athlete.ErrAthleteNotFound
	}
	return a, nil
}

type fakeMetricsRepo struct {
	values map[bodymetrics.Field]float64
}

func (f *fakeMetricsRepo) LatestNonNull(_ context.Context, _ int, field bodymetrics.Field) (time.Time, float64, bool, error) {
	value, ok := f.values[field]
	if !ok {
		return time.Time{}, 0, false, nil
	}
	return time.Now(), value, true, nil
}

func newTestBuilder(athletes map[int]athlete.Athlete, metricValues map[bodymetrics.Field]float64) *Builder {
	return NewBuilder(
		&fakeAthleteRepo{athletes: athletes},
		&fakeMetricsRepo{values: metricValues},
		0,
	)
}

func TestInferPlanType(t *testing.T) {
	testCases := map[string]PlanType{
		"Raise my FTP to 300W":          PlanCyclingFTP,
		"sweet spot base for spring":    PlanCyclingFTP,
		"I want to cut fat loss":        PlanFatLoss,
		"run my first marathon":         PlanRunMarathon,
		"sub-40 10k":                    PlanRun10k,
		"5 km parkrun PB":               PlanRun5k,
		"ironman prep":                  PlanTriathlon,
		"just get generally fitter pls": PlanCyclingFTP,
		"":                              PlanCyclingFTP,
	}
	for goalText, expected := range testCases {
		assert.Equal(t, expected, InferPlanType(goalText), goalText)
	}
}

func TestBuilder_Build(t *testing.T) {
	builder := newTestBuilder(
		map[int]athlete.Athlete{1: {ID: 1, Sex: "male", Age: 35, HeightCm: 176, WeightKg: 80}},
		map[bodymetrics.Field]float64{
			bodymetrics.FieldWeightKg: 75,
			bodymetrics.FieldFTPw:     250,
		},
	)

	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	p, err := builder.Build(context.Background(), 1, "raise my FTP", 8, start)
	require.NoError(t, err)

	assert.Equal(t, PlanCyclingFTP, p.PlanType)
	assert.Equal(t, 8, p.Summary.Weeks)
	assert.Equal(t, "2025-03-10", p.Summary.StartDate)
	require.NotNil(t, p.Summary.AthleteSnapshot.WeightKg)
	assert.InDelta(t, 75, *p.Summary.AthleteSnapshot.WeightKg, 0.001)
	require.Len(t, p.Blocks, 8)

	// recovery every 4th week, focus labels cycle through the build
	assert.Equal(t, "Build 1", p.Blocks[0].Focus)
	assert.Equal(t, "Build 2", p.Blocks[1].Focus)
	assert.Equal(t, "Build 3", p.Blocks[2].Focus)
	assert.Equal(t, "Recovery", p.Blocks[3].Focus)
	assert.Equal(t, "Build 1", p.Blocks[4].Focus)
	assert.Equal(t, "Recovery", p.Blocks[7].Focus)

	// week start dates advance by 7 days
	assert.Equal(t, "2025-03-17", p.Blocks[1].StartDate)

	// progression bump: Tue threshold 75 -> 78 (x1.05) -> 82 (x1.10)
	require.Len(t, p.Blocks[0].Sessions, 7)
	assert.Equal(t, 75, p.Blocks[0].Sessions[1].DurationMin)
	assert.Equal(t, 78, p.Blocks[1].Sessions[1].DurationMin)
	assert.Equal(t, 82, p.Blocks[2].Sessions[1].DurationMin)
	// bump resets after the recovery week
	assert.Equal(t, 75, p.Blocks[4].Sessions[1].DurationMin)

	// watt bands off FTP 250
	tueThreshold := p.Blocks[0].Sessions[1]
	require.NotNil(t, tueThreshold.TargetWatts)
	assert.InDelta(t, 238, tueThreshold.TargetWatts.LowW, 0.001)
	assert.InDelta(t, 250, tueThreshold.TargetWatts.HighW, 0.001)

	monRest := p.Blocks[0].Sessions[0]
	assert.Equal(t, 0, monRest.TSS)
	assert.Nil(t, monRest.TargetWatts)

	// maintenance nutrition overlay at the logged 75kg
	assert.InDelta(t, 2688, p.Nutrition.TrainingDay.Calories, 0.001)
	assert.InDelta(t, 2352, p.Nutrition.RestDay.Calories, 0.001)

	// cycling plans get beta-alanine on top of the common set
	require.Len(t, p.Supplements, 5)
	assert.Equal(t, "Beta-alanine", p.Supplements[4].Name)
	assert.NotEmpty(t, p.AdaptationRules)
}

func TestBuilder_Build_nonCyclingSupplements(t *testing.T) {
	builder := newTestBuilder(
		map[int]athlete.Athlete{1: {ID: 1, Sex: "male", Age: 35, HeightCm: 176, WeightKg: 80}},
		nil,
	)

	p, err := builder.Build(context.Background(), 1, "marathon in autumn", 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, PlanRunMarathon, p.PlanType)
	assert.Equal(t, DefaultWeeks, p.Summary.Weeks)
	assert.Len(t, p.Supplements, 4)
}

func TestBuilder_Build_fallbacks(t *testing.T) {
	// bare profile, nothing logged
	builder := newTestBuilder(map[int]athlete.Athlete{1: {ID: 1}}, nil)

	p, err := builder.Build(context.Background(), 1, "ftp", 4, time.Now())
	require.NoError(t, err)

	snapshot := p.Summary.AthleteSnapshot
	assert.Nil(t, snapshot.WeightKg)
	assert.Nil(t, snapshot.FTPw)
	assert.Equal(t, "male", snapshot.Sex)
	assert.Equal(t, 35, snapshot.Age)
	assert.InDelta(t, 176, snapshot.HeightCm, 0.001)

	// no FTP means no watt bands anywhere
	for _, block := range p.Blocks {
		for _, session := range block.Sessions {
			assert.Nil(t, session.TargetWatts)
		}
	}

	// nutrition computed off the 75kg fallback
	assert.InDelta(t, 2688, p.Nutrition.TrainingDay.Calories, 0.001)
}

func TestBuilder_Build_weeksValidation(t *testing.T) {
	builder := newTestBuilder(map[int]athlete.Athlete{1: {ID: 1}}, nil)

	for _, weeks := range []int{-1, 53, 100} {
		_, err := builder.Build(context.Background(), 1, "ftp", weeks, time.Now())
		assert.ErrorIs(t, err, ErrInvalidWeeks, "weeks=%d", weeks)
	}

	p, err := builder.Build(context.Background(), 1, "ftp", 52, time.Now())
	require.NoError(t, err)
	assert.Len(t, p.Blocks, 52)
}

func TestBuilder_Build_athleteNotFound(t *testing.T) {
	builder := newTestBuilder(map[int]athlete.Athlete{}, nil)

	_, err := builder.Build(context.Background(), 42, "ftp", 6, time.Now())
	assert.ErrorIs(t, err, athlete.ErrAthleteNotFound)
}
