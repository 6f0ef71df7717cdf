package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2beens/velotrain/internal/activities"
	"github.com/2beens/velotrain/internal/adapt"
	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"
	"github.com/2beens/velotrain/internal/goals"
	"github.com/2beens/velotrain/internal/training"
	"github.com/2beens/velotrain/internal/weather"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday
var testToday = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

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
	latest       map[bodymetrics.Field]float64
	ftpW         float64
	ftpSource    string
	observations []bodymetrics.Observation
	err          error
}

func (f *fakeMetricsReader) LatestNonNull(_ context.Context, _ int, field bodymetrics.Field) (time.Time, float64, bool, error) {
	if f.err != nil {
		return time.Time{}, 0, false, f.err
	}
	value, ok := f.latest[field]
	return testToday, value, ok, nil
}

func (f *fakeMetricsReader) LatestFTP(_ context.Context, _ int) (time.Time, float64, string, bool, error) {
	if f.err != nil {
		return time.Time{}, 0, "", false, f.err
	}
	if f.ftpW == 0 {
		return time.Time{}, 0, "", false, nil
	}
	return testToday, f.ftpW, f.ftpSource, true, nil
}

func (f *fakeMetricsReader) ListRange(_ context.Context, _ int, _, _ time.Time) ([]bodymetrics.Observation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.observations, nil
}

type fakeActivitiesReader struct {
	fatigue float64
	history []activities.Activity
	err     error
}

func (f *fakeActivitiesReader) TrailingSumTSS(_ context.Context, _ int, _ time.Time, _ int) (float64, error) {
	return f.fatigue, f.err
}

func (f *fakeActivitiesReader) ListRange(_ context.Context, _ int, _, _ time.Time) ([]activities.Activity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

type fakeBlockReader struct{}

func (f *fakeBlockReader) LatestBlock(_ context.Context, _ int) (training.TrainingBlock, bool, error) {
	return training.TrainingBlock{}, false, nil
}

type fakeGoalsReader struct{}

func (f *fakeGoalsReader) Active(_ context.Context, _ int) (goals.Goal, bool, error) {
	return goals.Goal{}, false, nil
}

type fakeForecastSource struct {
	forecast *weather.Forecast
	err      error
}

func (f *fakeForecastSource) DailyForecast(_ context.Context, _, _ float64) (*weather.Forecast, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.forecast, nil
}

func mildForecast() *weather.Forecast {
	precip := 0.1
	wind := 12.0
	return &weather.Forecast{
		Provider: "open-meteo",
		Today:    weather.TodayConditions{PrecipProb: &precip, WindMaxKph: &wind},
	}
}

func newTestDashboardHandler(
	metricsRepo *fakeMetricsReader,
	activityRepo *fakeActivitiesReader,
	weatherAPI *fakeForecastSource,
) *Handler {
	athletes := &fakeAthleteRepo{athletes: map[int]athlete.Athlete{
		1: {ID: 1, Name: "Marin", Sex: "male", Age: 35, HeightCm: 176, WeightKg: 75, FTPw: 250},
	}}
	handler := NewHandler(
		athletes, metricsRepo, activityRepo,
		&fakeBlockReader{}, &fakeGoalsReader{}, weatherAPI,
		training.NewGenerator(0), adapt.NewEngine(),
		47.2692, 11.4041,
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

func TestHandleToday_allSourcesHealthy(t *testing.T) {
	metricsRepo := &fakeMetricsReader{
		latest: map[bodymetrics.Field]float64{
			bodymetrics.FieldWeightKg:  74.2,
			bodymetrics.FieldRestingHR: 48,
			bodymetrics.FieldHRVms:     62,
		},
		ftpW:      255,
		ftpSource: "apple_health",
	}
	handler := newTestDashboardHandler(
		metricsRepo, &fakeActivitiesReader{fatigue: 200}, &fakeForecastSource{forecast: mildForecast()},
	)

	req := httptest.NewRequest("GET", "/dashboard/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	assert.Equal(t, 1, resp.AthleteID)
	assert.Equal(t, "2025-03-10", resp.Date)
	assert.Empty(t, resp.Errors)
	assert.Empty(t, resp.Notices)

	require.NotNil(t, resp.Metrics)
	require.NotNil(t, resp.Metrics.WeightKg)
	assert.Equal(t, 74.2, *resp.Metrics.WeightKg)
	require.NotNil(t, resp.Metrics.FTPw)
	assert.Equal(t, 255.0, *resp.Metrics.FTPw)
	assert.Equal(t, "apple_health", resp.Metrics.FTPSource)
	assert.Nil(t, resp.Metrics.SleepMin)

	// Monday of a default build week is a rest day
	require.NotNil(t, resp.Session)
	assert.Equal(t, "2025-03-10", resp.Session.Date.Format("2006-01-02"))
	assert.Zero(t, resp.Session.IntensityFactor)

	// rest day targets for 74.2 kg: BMR 1672, TDEE 2340.8
	require.NotNil(t, resp.Nutrition)
	assert.Equal(t, 2341.0, resp.Nutrition.Calories)

	require.NotNil(t, resp.Weather)
	assert.Equal(t, "open-meteo", resp.Weather.Provider)

	require.NotNil(t, resp.Adaptation)
	assert.Equal(t, adapt.DecisionMaintain, resp.Adaptation.Decision)
}

func TestHandleToday_weatherFailureIsolated(t *testing.T) {
	handler := newTestDashboardHandler(
		&fakeMetricsReader{}, &fakeActivitiesReader{}, &fakeForecastSource{err: assert.AnError},
	)

	req := httptest.NewRequest("GET", "/dashboard/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	assert.Nil(t, resp.Weather)
	assert.Equal(t, "weather_unavailable", resp.Errors["weather"])

	// everything else still present
	require.NotNil(t, resp.Session)
	require.NotNil(t, resp.Nutrition)
	require.NotNil(t, resp.Adaptation)
}

func TestHandleToday_metricsFailureIsolated(t *testing.T) {
	handler := newTestDashboardHandler(
		&fakeMetricsReader{err: assert.AnError},
		&fakeActivitiesReader{},
		&fakeForecastSource{forecast: mildForecast()},
	)

	req := httptest.NewRequest("GET", "/dashboard/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	assert.Nil(t, resp.Metrics)
	assert.Equal(t, "metrics_unavailable", resp.Errors["metrics"])
	// metrics also feed the adaptation readiness history
	assert.Equal(t, "adaptation_unavailable", resp.Errors["adaptation"])

	// session falls back to the profile FTP, nutrition to profile weight
	require.NotNil(t, resp.Session)
	require.NotNil(t, resp.Nutrition)
	assert.Equal(t, 2352.0, resp.Nutrition.Calories)
	require.NotNil(t, resp.Weather)
}

func TestHandleToday_missingFTPNotice(t *testing.T) {
	handler := newTestDashboardHandler(
		&fakeMetricsReader{}, &fakeActivitiesReader{}, &fakeForecastSource{forecast: mildForecast()},
	)
	handler.athleteRepo = &fakeAthleteRepo{athletes: map[int]athlete.Athlete{
		1: {ID: 1, Name: "Novi", Sex: "male", Age: 35, HeightCm: 176, WeightKg: 75},
	}}

	req := httptest.NewRequest("GET", "/dashboard/today?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)

	resp := decodeToday(t, rr)
	assert.Contains(t, resp.Notices, noticeFTPMissing)
	require.NotNil(t, resp.Session)
	assert.Nil(t, resp.Session.TargetPower)
}

func TestHandleToday_athleteNotFound(t *testing.T) {
	handler := newTestDashboardHandler(
		&fakeMetricsReader{}, &fakeActivitiesReader{}, &fakeForecastSource{forecast: mildForecast()},
	)

	req := httptest.NewRequest("GET", "/dashboard/today?athlete_id=99", nil)
	rr := httptest.NewRecorder()
	handler.HandleToday(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req = httptest.NewRequest("GET", "/dashboard/today?athlete_id=abc", nil)
	rr = httptest.NewRecorder()
	handler.HandleToday(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
