package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/2beens/velotrain/internal/telemetry/metrics"
	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

type forecastSource interface {
	DailyForecast(ctx context.Context, lat, lon float64) (*Forecast, error)
}

type coordinatesResolver interface {
	Coordinates(ctx context.Context, r *http.Request) (lat, lon float64, err error)
}

type Handler struct {
	api     forecastSource
	geoIP   coordinatesResolver
	homeLat float64
	homeLon float64
	metrics *metrics.Manager
}

func NewHandler(
	api forecastSource,
	geoIP coordinatesResolver,
	homeLat, homeLon float64,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		api:     api,
		geoIP:   geoIP,
		homeLat: homeLat,
		homeLon: homeLon,
		metrics: metricsManager,
	}
}

// HandleToday returns the forecast for the given coordinates, or for
// the caller's location resolved via geo IP, or for home as the last
// resort.
func (handler *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "weather.handleToday")
	defer span.End()

	lat, lon := handler.resolveCoordinates(ctx, r)

	forecast, err := handler.api.DailyForecast(ctx, lat, lon)
	if err != nil {
		log.Errorf("weather today for [%f, %f]: %s", lat, lon, err)
		http.Error(w, "weather_fetch_failed", http.StatusBadGateway)
		return
	}

	respJson, err := json.Marshal(forecast)
	if err != nil {
		log.Errorf("marshal weather today: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) resolveCoordinates(ctx context.Context, r *http.Request) (float64, float64) {
	latParam := r.URL.Query().Get("lat")
	lonParam := r.URL.Query().Get("lon")
	if latParam != "" && lonParam != "" {
		lat, latErr := strconv.ParseFloat(latParam, 64)
		lon, lonErr := strconv.ParseFloat(lonParam, 64)
		if latErr == nil && lonErr == nil {
			return lat, lon
		}
	}

	if handler.geoIP != nil {
		if lat, lon, err := handler.geoIP.Coordinates(ctx, r); err == nil {
			return lat, lon
		} else {
			log.Debugf("weather today, geo ip lookup: %s", err)
		}
	}

	handler.metrics.CounterWeatherFallbacks.Inc()
	return handler.homeLat, handler.homeLon
}
