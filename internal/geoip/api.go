package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	"github.com/go-redis/redis/v8"
	"github.com/ipinfo/go/v2/ipinfo"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Location is the resolved request origin, as far as the weather
// endpoints care about it
type Location struct {
	IP        string  `json:"ip"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// used for development
var devLocation = Location{
	IP:        "127.0.0.1",
	City:      "Innsbruck",
	Country:   "AT",
	Latitude:  47.2692,
	Longitude: 11.4041,
}

type Api struct {
	mu           sync.Mutex
	ipInfoClient *ipinfo.Client
	redisClient  *redis.Client
}

func NewApi(ipInfoToken string, httpClient *http.Client, redisClient *redis.Client) *Api {
	return &Api{
		ipInfoClient: ipinfo.NewClient(httpClient, nil, ipInfoToken),
		redisClient:  redisClient,
	}
}

// GetRequestLocation resolves the caller's coordinates from the request
// IP. The ipinfo free plan is call-limited, so responses are cached in
// redis indefinitely and lookups serialized.
func (gi *Api) GetRequestLocation(ctx context.Context, r *http.Request) (location *Location, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "geoIp.getRequestLocation")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	userIp, err := pkg.ReadUserIP(r)
	if err != nil {
		return nil, fmt.Errorf("get user ip: %w", err)
	}
	span.SetAttributes(attribute.String("user.ip", userIp))

	if userIp == "localhost" {
		log.Debugf("request location: returning development localhost")
		loc := devLocation
		return &loc, nil
	}

	gi.mu.Lock()
	defer gi.mu.Unlock()

	userIpKey := fmt.Sprintf("ip-info::%s", userIp)
	cmd := gi.redisClient.Get(ctx, userIpKey)
	if cachedBytes := cmd.Val(); cachedBytes != "" {
		span.SetAttributes(attribute.Bool("user.ip.from-cache", true))
		var cached Location
		if err := json.Unmarshal([]byte(cachedBytes), &cached); err == nil {
			log.Tracef("found location for [%s] in redis cache", userIp)
			return &cached, nil
		}
		log.Errorf("failed to unmarshal cached location from redis for %s: %s", userIp, err)
		// continue, and try getting it from ipinfo
	} else {
		span.SetAttributes(attribute.Bool("user.ip.from-cache", false))
	}

	ip := net.ParseIP(userIp)
	if ip == nil {
		return nil, fmt.Errorf("invalid user ip: %s", userIp)
	}

	info, err := gi.ipInfoClient.GetIPInfo(ip)
	if err != nil {
		return nil, fmt.Errorf("get ip info: %w", err)
	}

	latitude, longitude, err := parseCoordinates(info.Location)
	if err != nil {
		return nil, fmt.Errorf("parse coordinates for %s: %w", userIp, err)
	}

	location = &Location{
		IP:        userIp,
		City:      info.City,
		Country:   info.Country,
		Latitude:  latitude,
		Longitude: longitude,
	}

	if locationBytes, err := json.Marshal(location); err != nil {
		log.Errorf("marshal location for redis cache: %s", err)
	} else if err := gi.redisClient.Set(ctx, userIpKey, locationBytes, 0).Err(); err != nil {
		log.Errorf("failed to cache location in redis for %s: %s", userIp, err)
	}

	return location, nil
}

// Coordinates adapts GetRequestLocation for callers that only need a
// lat/lon pair
func (gi *Api) Coordinates(ctx context.Context, r *http.Request) (float64, float64, error) {
	location, err := gi.GetRequestLocation(ctx, r)
	if err != nil {
		return 0, 0, err
	}
	return location.Latitude, location.Longitude, nil
}

// parseCoordinates splits an ipinfo "lat,lon" location string
func parseCoordinates(loc string) (float64, float64, error) {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected location format: %q", loc)
	}
	latitude, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	longitude, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return latitude, longitude, nil
}
