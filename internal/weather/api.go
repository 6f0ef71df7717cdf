package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/2beens/velotrain/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

const (
	oneHour           = 60 * 60
	forecastCacheTTL  = oneHour * 1 // expire in seconds
	forecastCacheSize = 10 * 1024 * 1024
	openMeteoForecast = "/v1/forecast"
	providerName      = "open-meteo"
)

type Api struct {
	cache      *freecache.Cache
	baseURL    string // https://api.open-meteo.com
	httpClient *http.Client
}

func NewApi(baseURL string, httpClient *http.Client) *Api {
	return &Api{
		cache:      freecache.NewCache(forecastCacheSize),
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// DailyForecast returns current conditions and today's extremes for the
// given coordinates, cached for an hour per rounded coordinate pair.
// Open-Meteo needs no API key.
func (a *Api) DailyForecast(ctx context.Context, lat, lon float64) (forecast *Forecast, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "weatherApi.dailyForecast")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "forecast retrieved")
		}
	}()

	cacheKey := fmt.Sprintf("daily::%.3f,%.3f", lat, lon)
	if cachedBytes, err := a.cache.Get([]byte(cacheKey)); err == nil {
		var cached Forecast
		if err = json.Unmarshal(cachedBytes, &cached); err == nil {
			log.Tracef("forecast for %s found in cache", cacheKey)
			return &cached, nil
		}
		log.Errorf("failed to unmarshal cached forecast for %s: %s", cacheKey, err)
	}

	forecastURL := fmt.Sprintf(
		"%s%s?latitude=%.4f&longitude=%.4f"+
			"&current=temperature_2m,wind_speed_10m"+
			"&daily=temperature_2m_max,temperature_2m_min,precipitation_probability_max,wind_speed_10m_max"+
			"&timezone=auto",
		a.baseURL, openMeteoForecast, lat, lon,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", forecastURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open-meteo response status: %d", resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read forecast response bytes: %w", err)
	}

	var apiResp openMeteoResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal forecast response: %w", err)
	}

	forecast = &Forecast{
		Provider: providerName,
		Current: CurrentConditions{
			TempC:   apiResp.Current.Temperature2m,
			WindKph: apiResp.Current.WindSpeed10m,
		},
		Today: TodayConditions{
			TmaxC:      firstOrNil(apiResp.Daily.Temperature2mMax),
			TminC:      firstOrNil(apiResp.Daily.Temperature2mMin),
			PrecipProb: asFraction(firstOrNil(apiResp.Daily.PrecipitationProbabilityMax)),
			WindMaxKph: firstOrNil(apiResp.Daily.WindSpeed10mMax),
		},
	}

	forecastBytes, err := json.Marshal(forecast)
	if err != nil {
		log.Errorf("marshal forecast for cache: %s", err)
		return forecast, nil
	}
	if err := a.cache.Set([]byte(cacheKey), forecastBytes, forecastCacheTTL); err != nil {
		log.Errorf("failed to write forecast cache for %s: %s", cacheKey, err)
	}

	return forecast, nil
}

func firstOrNil(values []*float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// asFraction converts the percent probability the API returns into the
// 0..1 fraction the adaptation rules expect
func asFraction(percent *float64) *float64 {
	if percent == nil {
		return nil
	}
	fraction := *percent / 100.0
	return &fraction
}
