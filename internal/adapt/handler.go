package adapt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/velotrain/internal/activities"
	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"
	"github.com/2beens/velotrain/internal/goals"
	"github.com/2beens/velotrain/internal/plan"
	"github.com/2beens/velotrain/internal/telemetry/metrics"
	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/internal/training"
	"github.com/2beens/velotrain/internal/weather"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

const (
	dateLayout = "2006-01-02"

	// how far back the handler reads history: enough for the 14-day
	// weight trend and the 42-day chronic load window
	readinessHistoryDays = 30
	loadHistoryDays      = training.ChronicWindowDays + 7
)

type athleteGetter interface {
	Get(ctx context.Context, id int) (athlete.Athlete, error)
}

type metricsReader interface {
	ListRange(ctx context.Context, athleteID int, from, to time.Time) ([]bodymetrics.Observation, error)
}

type activitiesReader interface {
	ListRange(ctx context.Context, athleteID int, from, to time.Time) ([]activities.Activity, error)
}

type goalsReader interface {
	Active(ctx context.Context, athleteID int) (goals.Goal, bool, error)
}

type forecastSource interface {
	DailyForecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
}

type Handler struct {
	engine       *Engine
	athleteRepo  athleteGetter
	metricsRepo  metricsReader
	activityRepo activitiesReader
	goalsRepo    goalsReader
	weatherAPI   forecastSource
	homeLat      float64
	homeLon      float64
	metrics      *metrics.Manager
	now          func() time.Time
}

func NewHandler(
	engine *Engine,
	athleteRepo athleteGetter,
	metricsRepo metricsReader,
	activityRepo activitiesReader,
	goalsRepo goalsReader,
	weatherAPI forecastSource,
	homeLat, homeLon float64,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		engine:       engine,
		athleteRepo:  athleteRepo,
		metricsRepo:  metricsRepo,
		activityRepo: activityRepo,
		goalsRepo:    goalsRepo,
		weatherAPI:   weatherAPI,
		homeLat:      homeLat,
		homeLon:      homeLon,
		metrics:      metricsManager,
		now:          time.Now,
	}
}

type todayResponse struct {
	AthleteID        int      `json:"athleteId"`
	Date             string   `json:"date"`
	TSB              *float64 `json:"tsb"`
	WeatherAvailable bool     `json:"weatherAvailable"`
	Decision         Result   `json:"decision"`
}

// HandleToday evaluates the adaptation rules for the athlete's day:
// readiness and weight trend from the logged daily observations, stress
// balance from the realized activity history, and today's weather.
func (handler *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "adapt.handleToday")
	defer span.End()

	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	if _, err := handler.athleteRepo.Get(ctx, athleteID); err != nil {
		if errors.Is(err, athlete.ErrAthleteNotFound) {
			http.Error(w, "athlete_not_found", http.StatusNotFound)
			return
		}
		log.Errorf("adapt today, get athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	today := handler.now()

	readiness, err := handler.metricsRepo.ListRange(
		ctx, athleteID, today.AddDate(0, 0, -readinessHistoryDays), today,
	)
	if err != nil {
		log.Errorf("adapt today, readiness history for athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	loadRow, tsb := handler.loadRow(ctx, athleteID, today)
	weatherRow, weatherAvailable := handler.weatherRow(ctx, r)

	result := handler.engine.Evaluate(Params{
		Readiness:    readiness,
		Load:         loadRow,
		Weather:      weatherRow,
		NutritionDay: handler.nutritionDay(ctx, athleteID),
	})
	handler.metrics.CounterAdaptationDecisions.WithLabelValues(result.Decision).Inc()

	respJson, err := json.Marshal(todayResponse{
		AthleteID:        athleteID,
		Date:             today.Format(dateLayout),
		TSB:              tsb,
		WeatherAvailable: weatherAvailable,
		Decision:         result,
	})
	if err != nil {
		log.Errorf("marshal adapt today: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

// loadRow computes the current stress balance off the realized activity
// history. Failure degrades to no load input instead of aborting.
func (handler *Handler) loadRow(ctx context.Context, athleteID int, today time.Time) (*LoadRow, *float64) {
	history, err := handler.activityRepo.ListRange(
		ctx, athleteID, today.AddDate(0, 0, -loadHistoryDays), today,
	)
	if err != nil {
		log.Errorf("adapt today, activity history for athlete %d: %s", athleteID, err)
		return nil, nil
	}
	if len(history) == 0 {
		return nil, nil
	}

	points := make([]training.StressPoint, 0, len(history))
	for _, a := range history {
		points = append(points, training.StressPoint{Date: a.Date, TSS: int(a.TSS)})
	}
	load := training.RollingLoad(points)
	last := load[len(load)-1]
	if !last.HasTSB {
		return nil, nil
	}
	tsb := last.TSB
	return &LoadRow{TSB: tsb, HasTSB: true}, &tsb
}

// weatherRow fetches today's forecast, degrading to no weather input
// when the upstream source fails
func (handler *Handler) weatherRow(ctx context.Context, r *http.Request) (*WeatherRow, bool) {
	lat, lon := handler.homeLat, handler.homeLon
	latParam, lonParam := r.URL.Query().Get("lat"), r.URL.Query().Get("lon")
	if latParam != "" && lonParam != "" {
		parsedLat, latErr := strconv.ParseFloat(latParam, 64)
		parsedLon, lonErr := strconv.ParseFloat(lonParam, 64)
		if latErr == nil && lonErr == nil {
			lat, lon = parsedLat, parsedLon
		}
	}

	forecast, err := handler.weatherAPI.DailyForecast(ctx, lat, lon)
	if err != nil {
		log.Errorf("adapt today, weather for [%f, %f]: %s", lat, lon, err)
		handler.metrics.CounterWeatherFallbacks.Inc()
		return nil, false
	}

	row := &WeatherRow{}
	if forecast.Today.PrecipProb != nil {
		row.PrecipProb = *forecast.Today.PrecipProb
	}
	if forecast.Today.WindMaxKph != nil {
		row.WindKph = *forecast.Today.WindMaxKph
	}
	return row, true
}

// nutritionDay labels today's nutrition profile off the active goal:
// a fat-loss goal means the athlete is not at maintenance
func (handler *Handler) nutritionDay(ctx context.Context, athleteID int) string {
	goal, found, err := handler.goalsRepo.Active(ctx, athleteID)
	if err != nil {
		log.Errorf("adapt today, active goal for athlete %d: %s", athleteID, err)
		return maintenanceDayTag
	}
	if found && plan.InferPlanType(goal.GoalPrompt) == plan.PlanFatLoss {
		return "fat_loss"
	}
	return maintenanceDayTag
}
