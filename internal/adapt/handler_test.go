package adapt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2beens/velotrain/internal/activities"
	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"
	"github.com/2beens/velotrain/internal/goals"
	"github.com/2beens/velotrain/internal/telemetry/metrics"
	"github.com/2beens/velotrain/internal/weather"

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

type fakeMetricsReader struct {
	observations []bodymetrics.Observation
}

func (f *fakeMetricsReader) ListRange(_ context.Context, _ int, _, _ time.Time) ([]bodymetrics.Observation, error) {
	return f.observations, nil
}

type fakeActivitiesReader struct {
	history []activities.Activity
}

func (f *fakeActivitiesReader) ListRange(_ context.Context, _ int, _, _ time.Time) ([]activities.Activity, error) {
	return f.history, nil
}

type fakeGoalsReader struct {
	goal  goals.Goal
	found bool
}

func (f *fakeGoalsReader) Active(_ context.Context, _ int) (goals.Goal, bool, error) {
	return f.goal, f.found, nil
}

type fakeForecastSource struct {
	forecast *weather.Forecast
	err      error
	gotLat   float64
	gotLon   float64
}

func (f *fakeForecastSource) DailyForecast(_ context.Context, lat, lon float64) (*weather.Forecast, error) {
	f.gotLat, f.gotLon = lat, lon
	if f.err != nil {
		return nil, f.err
	}
	return f.forecast, nil
}

var testToday = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func mildForecast() *weather.Forecast {
	precip := 0.1
	wind := 12.0
	return &weather.Forecast{
		Provider: "open-meteo",
		Today:    weather.TodayConditions{PrecipProb: &precip, WindMaxKph: &wind},
	}
}

func newTestAdaptHandler(
	metricsRepo *fakeMetricsReader,
	activityRepo *fakeActivitiesReader,
	goalsRepo *fakeGoalsReader,
	weatherAPI *fakeForecastSource,
) *Handler {
	athletes := &fakeAthleteRepo{athletes: map[int]athlete.Athlete{
		1: {ID: 1, Name: "Marin", WeightKg: 75},
	}}
	handler := NewHandler(
		NewEngine(), athletes, metricsRepo, activityRepo, goalsRepo,
		weatherAPI, 47.2692, 11.4041, metrics.NewTestManager(),
	)
	handler.now = func() time.Time { return testToday }
	return handler
}

func decodeToday(t *testing.T, rr *httptest.ResponseRecorder) todayResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code)
	var resp todayResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHandleToday_noFlagsMaintains(t *testing.T) {
	weatherAPI := &fakeForecastSource{forecast: mildForecast()}
	handler := newTestAdaptHandler(
		&fakeMetricsReader{}, &fakeActivitiesReader{}, &fakeGoalsReader{}, weatherAPI,
	)

	req := httptest.NewRequest("GET", "/adapt/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	assert.Equal(t, 1, resp.AthleteID)
	assert.Equal(t, "2025-03-10", resp.Date)
	assert.Nil(t, resp.TSB)
	assert.True(t, resp.WeatherAvailable)
	assert.Equal(t, DecisionMaintain, resp.Decision.Decision)
	assert.Equal(t, "No flags", resp.Decision.Reason)

	// no coordinates in the query, home location used
	assert.InDelta(t, 47.2692, weatherAPI.gotLat, 0.0001)
	assert.InDelta(t, 11.4041, weatherAPI.gotLon, 0.0001)
}

func TestHandleToday_queryCoordinatesUsed(t *testing.T) {
	weatherAPI := &fakeForecastSource{forecast: mildForecast()}
	handler := newTestAdaptHandler(
		&fakeMetricsReader{}, &fakeActivitiesReader{}, &fakeGoalsReader{}, weatherAPI,
	)

	req := httptest.NewRequest("GET", "/adapt/today?athlete_id=1&lat=48.2&lon=16.37", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 48.2, weatherAPI.gotLat, 0.0001)
	assert.InDelta(t, 16.37, weatherAPI.gotLon, 0.0001)
}

func TestHandleToday_weatherFailureIsolated(t *testing.T) {
	weatherAPI := &fakeForecastSource{err: assert.AnError}
	handler := newTestAdaptHandler(
		&fakeMetricsReader{}, &fakeActivitiesReader{}, &fakeGoalsReader{}, weatherAPI,
	)

	req := httptest.NewRequest("GET", "/adapt/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	assert.False(t, resp.WeatherAvailable)
	assert.Equal(t, DecisionMaintain, resp.Decision.Decision)
}

func TestHandleToday_stormyDaySwaps(t *testing.T) {
	precip := 0.9
	wind := 20.0
	weatherAPI := &fakeForecastSource{forecast: &weather.Forecast{
		Today: weather.TodayConditions{PrecipProb: &precip, WindMaxKph: &wind},
	}}
	handler := newTestAdaptHandler(
		&fakeMetricsReader{}, &fakeActivitiesReader{}, &fakeGoalsReader{}, weatherAPI,
	)

	req := httptest.NewRequest("GET", "/adapt/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	assert.Equal(t, DecisionSwap, resp.Decision.Decision)
	assert.Equal(t, "Weather", resp.Decision.Rule)
}

func TestHandleToday_deepFatigueReduces(t *testing.T) {
	// one big day followed by a rest day: yesterday's acute load far
	// exceeds the chronic average, so today's balance is deeply negative
	history := []activities.Activity{
		{AthleteID: 1, Date: testToday.AddDate(0, 0, -1), Sport: activities.SportBike, DurationMin: 240, TSS: 300},
		{AthleteID: 1, Date: testToday, Sport: activities.SportBike, DurationMin: 0, TSS: 0},
	}
	handler := newTestAdaptHandler(
		&fakeMetricsReader{},
		&fakeActivitiesReader{history: history},
		&fakeGoalsReader{},
		&fakeForecastSource{forecast: mildForecast()},
	)

	req := httptest.NewRequest("GET", "/adapt/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	require.NotNil(t, resp.TSB)
	assert.InDelta(t, 50.0-300.0, *resp.TSB, 0.001)
	assert.Equal(t, DecisionReduce, resp.Decision.Decision)
	assert.Equal(t, "Load", resp.Decision.Rule)
}

func TestHandleToday_fatLossGoalStalledWeight(t *testing.T) {
	// 14 days of flat weight while on a fat loss goal
	history := steadyHistory(14, 60, 48, 460, 75)
	prompt := "lose fat before the spring block"
	handler := newTestAdaptHandler(
		&fakeMetricsReader{observations: history},
		&fakeActivitiesReader{},
		&fakeGoalsReader{goal: goals.Goal{ID: 3, AthleteID: 1, GoalPrompt: prompt}, found: true},
		&fakeForecastSource{forecast: mildForecast()},
	)

	req := httptest.NewRequest("GET", "/adapt/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	assert.Equal(t, DecisionFewerKcal, resp.Decision.Decision)
	assert.Equal(t, "Nutrition", resp.Decision.Rule)
}

func TestHandleToday_validation(t *testing.T) {
	handler := newTestAdaptHandler(
		&fakeMetricsReader{}, &fakeActivitiesReader{}, &fakeGoalsReader{},
		&fakeForecastSource{forecast: mildForecast()},
	)

	for _, athleteIDParam := range []string{"", "0", "-2", "abc"} {
		req := httptest.NewRequest("GET", "/adapt/today?athlete_id="+athleteIDParam, nil)
		rr := httptest.NewRecorder()
		handler.HandleToday(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}

	req := httptest.NewRequest("GET", "/adapt/today?athlete_id=99", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
