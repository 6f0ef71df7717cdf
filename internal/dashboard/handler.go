package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/velotrain/internal/activities"
	"github.com/2beens/velotrain/internal/adapt"
	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"
	"github.com/2beens/velotrain/internal/goals"
	"github.com/2beens/velotrain/internal/nutrition"
	"github.com/2beens/velotrain/internal/plan"
	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/internal/training"
	"github.com/2beens/velotrain/internal/weather"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	dateLayout = "2006-01-02"

	fallbackWeightKg = 75.0

	readinessHistoryDays = 30
	loadHistoryDays      = training.ChronicWindowDays + 7

	noticeFTPMissing = "FTP missing: schedule test or enable auto-derivation."
)

type athleteGetter interface {
	Get(ctx context.Context, id int) (athlete.Athlete, error)
}

type metricsReader interface {
	LatestNonNull(ctx context.Context, athleteID int, field bodymetrics.Field) (time.Time, float64, bool, error)
	LatestFTP(ctx context.Context, athleteID int) (time.Time, float64, string, bool, error)
	ListRange(ctx context.Context, athleteID int, from, to time.Time) ([]bodymetrics.Observation, error)
}

type activitiesReader interface {
	TrailingSumTSS(ctx context.Context, athleteID int, asOf time.Time, windowDays int) (float64, error)
	ListRange(ctx context.Context, athleteID int, from, to time.Time) ([]activities.Activity, error)
}

type blockReader interface {
	LatestBlock(ctx context.Context, athleteID int) (training.TrainingBlock, bool, error)
}

type goalsReader interface {
	Active(ctx context.Context, athleteID int) (goals.Goal, bool, error)
}

type forecastSource interface {
	DailyForecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
}

// Handler assembles the whole "today" view. Every source degrades on
// its own: a failed slot turns into an error marker while the rest of
// the response stays intact. Only an unknown athlete fails the request.
type Handler struct {
	athleteRepo  athleteGetter
	metricsRepo  metricsReader
	activityRepo activitiesReader
	blocksRepo   blockReader
	goalsRepo    goalsReader
	weatherAPI   forecastSource
	generator    *training.Generator
	engine       *adapt.Engine
	homeLat      float64
	homeLon      float64
	now          func() time.Time
}

func NewHandler(
	athleteRepo athleteGetter,
	metricsRepo metricsReader,
	activityRepo activitiesReader,
	blocksRepo blockReader,
	goalsRepo goalsReader,
	weatherAPI forecastSource,
	generator *training.Generator,
	engine *adapt.Engine,
	homeLat, homeLon float64,
) *Handler {
	return &Handler{
		athleteRepo:  athleteRepo,
		metricsRepo:  metricsRepo,
		activityRepo: activityRepo,
		blocksRepo:   blocksRepo,
		goalsRepo:    goalsRepo,
		weatherAPI:   weatherAPI,
		generator:    generator,
		engine:       engine,
		homeLat:      homeLat,
		homeLon:      homeLon,
		now:          time.Now,
	}
}

type metricsSlot struct {
	WeightKg  *float64 `json:"weightKg"`
	RestingHR *float64 `json:"restingHrBpm"`
	HRVms     *float64 `json:"hrvMs"`
	SleepMin  *float64 `json:"sleepMin"`
	FTPw      *float64 `json:"ftpW"`
	FTPSource string   `json:"ftpSource,omitempty"`
}

type todayResponse struct {
	AthleteID  int                `json:"athleteId"`
	Date       string             `json:"date"`
	Metrics    *metricsSlot       `json:"metrics"`
	Session    *training.Session  `json:"session"`
	Nutrition  *nutrition.Targets `json:"nutrition"`
	Weather    *weather.Forecast  `json:"weather"`
	Adaptation *adapt.Result      `json:"adaptation"`
	Notices    []string           `json:"notices"`
	// per-source failure markers, keyed by slot name
	Errors map[string]string `json:"errors,omitempty"`
}

func (handler *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboard.handleToday")
	defer span.End()

	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	a, err := handler.athleteRepo.Get(ctx, athleteID)
	if err != nil {
		if errors.Is(err, athlete.ErrAthleteNotFound) {
			http.Error(w, "athlete_not_found", http.StatusNotFound)
			return
		}
		log.Errorf("dashboard today, get athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	today := handler.now()
	resp := todayResponse{
		AthleteID: athleteID,
		Date:      today.Format(dateLayout),
		Notices:   []string{},
		Errors:    map[string]string{},
	}
	var sourceErrs error

	metricsData, err := handler.metricsSlot(ctx, athleteID)
	if err != nil {
		resp.Errors["metrics"] = "metrics_unavailable"
		sourceErrs = multierr.Append(sourceErrs, err)
	} else {
		resp.Metrics = metricsData
	}

	ftpW, ftpKnown := handler.resolveFTP(metricsData, a)
	if !ftpKnown {
		resp.Notices = append(resp.Notices, noticeFTPMissing)
	}

	session := handler.sessionSlot(ctx, athleteID, ftpW, today, r.URL.Query().Get("indoor") == "true", &sourceErrs)
	resp.Session = &session

	targets := handler.nutritionSlot(a, metricsData, session)
	resp.Nutrition = &targets

	lat, lon := handler.coordinates(r)
	forecast, err := handler.weatherAPI.DailyForecast(ctx, lat, lon)
	if err != nil {
		resp.Errors["weather"] = "weather_unavailable"
		sourceErrs = multierr.Append(sourceErrs, err)
	} else {
		resp.Weather = forecast
	}

	decision, err := handler.adaptationSlot(ctx, athleteID, today, forecast)
	if err != nil {
		resp.Errors["adaptation"] = "adaptation_unavailable"
		sourceErrs = multierr.Append(sourceErrs, err)
	} else {
		resp.Adaptation = decision
	}

	if sourceErrs != nil {
		log.Errorf("dashboard today for athlete %d, degraded sources: %s", athleteID, sourceErrs)
	}
	if len(resp.Errors) == 0 {
		resp.Errors = nil
	}

	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal dashboard today: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) metricsSlot(ctx context.Context, athleteID int) (*metricsSlot, error) {
	slot := &metricsSlot{}
	fields := []struct {
		field  bodymetrics.Field
		target **float64
	}{
		{bodymetrics.FieldWeightKg, &slot.WeightKg},
		{bodymetrics.FieldRestingHR, &slot.RestingHR},
		{bodymetrics.FieldHRVms, &slot.HRVms},
		{bodymetrics.FieldSleepMin, &slot.SleepMin},
	}
	for _, f := range fields {
		_, value, found, err := handler.metricsRepo.LatestNonNull(ctx, athleteID, f.field)
		if err != nil {
			return nil, err
		}
		if found {
			v := value
			*f.target = &v
		}
	}

	_, ftpValue, ftpSource, found, err := handler.metricsRepo.LatestFTP(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	if found {
		slot.FTPw = &ftpValue
		slot.FTPSource = ftpSource
	}
	return slot, nil
}

func (handler *Handler) resolveFTP(metricsData *metricsSlot, a athlete.Athlete) (float64, bool) {
	if metricsData != nil && metricsData.FTPw != nil && *metricsData.FTPw > 0 {
		return *metricsData.FTPw, true
	}
	if a.FTPw > 0 {
		return a.FTPw, true
	}
	return 0, false
}

// sessionSlot resolves today's planned session. Fatigue and block
// lookups degrade to their defaults, the generator itself cannot fail.
func (handler *Handler) sessionSlot(
	ctx context.Context,
	athleteID int,
	ftpW float64,
	today time.Time,
	indoor bool,
	sourceErrs *error,
) training.Session {
	fatigue := 0.0
	if sum, err := handler.activityRepo.TrailingSumTSS(
		ctx, athleteID, today.AddDate(0, 0, -1), training.AcuteWindowDays,
	); err != nil {
		*sourceErrs = multierr.Append(*sourceErrs, err)
	} else {
		fatigue = sum
	}

	params := training.WeekPlanParams{
		FTPw:         ftpW,
		StartDate:    today,
		Fatigue7dTSS: int(math.Round(fatigue)),
		Indoor:       indoor,
	}
	if block, found, err := handler.blocksRepo.LatestBlock(ctx, athleteID); err != nil {
		*sourceErrs = multierr.Append(*sourceErrs, err)
	} else if found {
		params.Block = &block
	}

	return handler.generator.WeekPlan(params)[0]
}

func (handler *Handler) nutritionSlot(
	a athlete.Athlete,
	metricsData *metricsSlot,
	session training.Session,
) nutrition.Targets {
	weightKg := a.WeightKg
	if metricsData != nil && metricsData.WeightKg != nil {
		weightKg = *metricsData.WeightKg
	}
	if weightKg <= 0 {
		weightKg = fallbackWeightKg
	}

	activityFactor := nutrition.ActivityFactorRestDay
	if session.IntensityFactor > 0 {
		activityFactor = nutrition.ActivityFactorTrainingDay
	}

	return nutrition.Calculate(nutrition.Params{
		Sex:            a.Sex,
		Age:            a.Age,
		HeightCm:       a.HeightCm,
		WeightKg:       weightKg,
		ActivityFactor: activityFactor,
		Goal:           nutrition.GoalMaintenance,
	})
}

func (handler *Handler) adaptationSlot(
	ctx context.Context,
	athleteID int,
	today time.Time,
	forecast *weather.Forecast,
) (*adapt.Result, error) {
	readiness, err := handler.metricsRepo.ListRange(
		ctx, athleteID, today.AddDate(0, 0, -readinessHistoryDays), today,
	)
	if err != nil {
		return nil, err
	}

	var loadRow *adapt.LoadRow
	history, err := handler.activityRepo.ListRange(
		ctx, athleteID, today.AddDate(0, 0, -loadHistoryDays), today,
	)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		points := make([]training.StressPoint, 0, len(history))
		for _, a := range history {
			points = append(points, training.StressPoint{Date: a.Date, TSS: int(a.TSS)})
		}
		load := training.RollingLoad(points)
		if last := load[len(load)-1]; last.HasTSB {
			loadRow = &adapt.LoadRow{TSB: last.TSB, HasTSB: true}
		}
	}

	var weatherRow *adapt.WeatherRow
	if forecast != nil {
		weatherRow = &adapt.WeatherRow{}
		if forecast.Today.PrecipProb != nil {
			weatherRow.PrecipProb = *forecast.Today.PrecipProb
		}
		if forecast.Today.WindMaxKph != nil {
			weatherRow.WindKph = *forecast.Today.WindMaxKph
		}
	}

	nutritionDay := "maintenance"
	if goal, found, err := handler.goalsRepo.Active(ctx, athleteID); err != nil {
		return nil, err
	} else if found && plan.InferPlanType(goal.GoalPrompt) == plan.PlanFatLoss {
		nutritionDay = "fat_loss"
	}

	result := handler.engine.Evaluate(adapt.Params{
		Readiness:    readiness,
		Load:         loadRow,
		Weather:      weatherRow,
		NutritionDay: nutritionDay,
	})
	return &result, nil
}

func (handler *Handler) coordinates(r *http.Request) (float64, float64) {
	latParam, lonParam := r.URL.Query().Get("lat"), r.URL.Query().Get("lon")
	if latParam != "" && lonParam != "" {
		lat, latErr := strconv.ParseFloat(latParam, 64)
		lon, lonErr := strconv.ParseFloat(lonParam, 64)
		if latErr == nil && lonErr == nil {
			return lat, lon
		}
	}
	return handler.homeLat, handler.homeLon
}
