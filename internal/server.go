package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/velotrain/internal/activities"
	"github.com/2beens/velotrain/internal/adapt"
	"github.com/2beens/velotrain/internal/applehealth"
	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"
	"github.com/2beens/velotrain/internal/config"
	"github.com/2beens/velotrain/internal/dashboard"
	"github.com/2beens/velotrain/internal/db"
	"github.com/2beens/velotrain/internal/geoip"
	"github.com/2beens/velotrain/internal/goals"
	"github.com/2beens/velotrain/internal/middleware"
	"github.com/2beens/velotrain/internal/nutrition"
	"github.com/2beens/velotrain/internal/plan"
	"github.com/2beens/velotrain/internal/strava"
	"github.com/2beens/velotrain/internal/telemetry/metrics"
	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/internal/training"
	"github.com/2beens/velotrain/internal/weather"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	geoIp       *geoip.Api
	weatherApi  *weather.Api

	stravaTokens   *strava.TokenSource
	stravaImporter *strava.Importer

	// telemetry
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	IpInfoAPIKey            string
	RedisPassword           string
	VersionInfo             string
	HoneycombTracingEnabled bool

	StravaClientID     string
	StravaClientSecret string
	StravaRefreshToken string
	// optional ready-made access token, skips the oauth exchange
	StravaAccessToken string
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("velotrain", "backend", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "velotrain-backend")
	if err != nil {
		return nil, err
	}

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	stravaTokens := strava.NewTokenSource(
		tracedHttpClient,
		rdb,
		params.Config.StravaOAuthURL,
		params.StravaClientID,
		params.StravaClientSecret,
		params.StravaRefreshToken,
		params.StravaAccessToken,
	)
	stravaClient := strava.NewClient(tracedHttpClient, stravaTokens, params.Config.StravaBaseURL)

	return &Server{
		config:      params.Config,
		versionInfo: params.VersionInfo,
		dbPool:      dbPool,
		redisClient: rdb,
		geoIp:       geoip.NewApi(params.IpInfoAPIKey, tracedHttpClient, rdb),
		weatherApi:  weather.NewApi(params.Config.OpenMeteoBaseURL, tracedHttpClient),

		stravaTokens: stravaTokens,
		stravaImporter: strava.NewImporter(
			stravaClient,
			activities.NewRepo(dbPool),
			metricsManager,
		),

		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("velotrain-router"))

	athleteRepo := athlete.NewRepo(s.dbPool)
	metricsRepo := bodymetrics.NewRepo(s.dbPool)
	activitiesRepo := activities.NewRepo(s.dbPool)
	goalsRepo := goals.NewRepo(s.dbPool)
	blocksRepo := training.NewRepo(s.dbPool)

	generator := training.NewGenerator(s.config.SundayFatigueGateTSS)
	adaptEngine := adapt.NewEngine()

	athleteHandler := athlete.NewHandler(athleteRepo)
	r.HandleFunc("/athlete/{id}", athleteHandler.HandleGet).Methods("GET")
	r.HandleFunc("/athlete/{id}", athleteHandler.HandleUpdate).Methods("PATCH")

	metricsHandler := bodymetrics.NewHandler(metricsRepo)
	r.HandleFunc("/metrics/latest", metricsHandler.HandleLatest).Methods("GET")
	r.HandleFunc("/metrics/log", metricsHandler.HandleLog).Methods("POST")

	activitiesHandler := activities.NewHandler(activitiesRepo)
	r.HandleFunc("/activities", activitiesHandler.HandleLog).Methods("POST")
	r.HandleFunc("/activities/recent", activitiesHandler.HandleRecent).Methods("GET")

	goalsHandler := goals.NewHandler(goalsRepo)
	r.HandleFunc("/goals", goalsHandler.HandleSet).Methods("POST")
	r.HandleFunc("/goals", goalsHandler.HandleActive).Methods("GET")

	trainingHandler := training.NewHandler(
		generator, athleteRepo, metricsRepo, blocksRepo, activitiesRepo, goalsRepo, s.metricsManager,
	)
	r.HandleFunc("/training/plan", trainingHandler.HandleWeekPlan).Methods("GET")
	r.HandleFunc("/training/block", trainingHandler.HandleAddBlock).Methods("POST")

	nutritionHandler := nutrition.NewHandler(athleteRepo, metricsRepo, blocksRepo, generator)
	r.HandleFunc("/nutrition/today", nutritionHandler.HandleToday).Methods("GET")

	planHandler := plan.NewHandler(
		plan.NewBuilder(athleteRepo, metricsRepo, s.config.PlanRecoveryCadenceWeeks),
	)
	r.HandleFunc("/plan/preview", planHandler.HandlePreview).Methods("POST")

	weatherHandler := weather.NewHandler(
		s.weatherApi, s.geoIp, s.config.HomeLat, s.config.HomeLon, s.metricsManager,
	)
	r.HandleFunc("/weather/today", weatherHandler.HandleToday).Methods("GET")

	adaptHandler := adapt.NewHandler(
		adaptEngine, athleteRepo, metricsRepo, activitiesRepo, goalsRepo,
		s.weatherApi, s.config.HomeLat, s.config.HomeLon, s.metricsManager,
	)
	r.HandleFunc("/adapt/today", adaptHandler.HandleToday).Methods("GET")

	dashboardHandler := dashboard.NewHandler(
		athleteRepo, metricsRepo, activitiesRepo, blocksRepo, goalsRepo,
		s.weatherApi, generator, adaptEngine,
		s.config.HomeLat, s.config.HomeLon,
	)
	r.HandleFunc("/dashboard/today", dashboardHandler.HandleToday).Methods("GET")

	// bulk import routes are rate limited, they hammer both us and the
	// upstream sources
	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	importRateLimit := func(routeName string, handlerFunc http.HandlerFunc) http.Handler {
		return middleware.RateLimit(
			reqRateLimiter, routeName, s.config.ImportRateLimitAllowedPerMin, s.metricsManager,
		)(handlerFunc)
	}

	stravaHandler := strava.NewHandler(s.stravaImporter, s.stravaTokens)
	r.Handle("/strava/import", importRateLimit("strava-import", stravaHandler.HandleImport)).Methods("POST")
	r.HandleFunc("/strava/ping", stravaHandler.HandlePing).Methods("GET")

	appleHealthHandler := applehealth.NewHandler(
		applehealth.NewImporter(metricsRepo, activitiesRepo, athleteRepo, s.metricsManager),
	)
	r.Handle("/apple_health/import", importRateLimit("apple-health-import", appleHealthHandler.HandleImport)).Methods("POST")

	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(s.versionInfo))
	}).Methods("GET")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "PATCH", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
